/*
	Project: Soma - study planner & focus tracker
	Target: students preparing exams (self-study first, study groups later..)
*/
package soma

/*
TODO: live hub only reaches clients connected to the same API instance:
	fan events out through redis pub/sub (rediskv already holds the timer state) when running more than 1 replica

TODO: weekly digest is sent by `admin digest` (cron); schedule it inside the API next to the timer sweeper

TODO: focus client
	- pick the task/node to focus on (GET /tasks?status=todo)
	- show pending celebrations & ack them
*/
