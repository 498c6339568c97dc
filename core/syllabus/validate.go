package syllabus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/plan"
)

const (
	schemaPath = "schemas/syllabus.schema.json"
	schemaURL  = "https://soma.local/schemas/syllabus.schema.json"
)

// maxItemDepth is the nesting allowed under a goal: stream, subject, chapter, topic.
const maxItemDepth = 4

var itemKinds = []plan.Kind{plan.KindStream, plan.KindSubject, plan.KindChapter, plan.KindTopic}

// Issue is one problem found in a document, located by path (e.g. goal.children[1].children[0]).
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// CompileSchema loads the embedded document schema.
func CompileSchema(fsys fs.FS) (*jsonschema.Schema, error) {
	data, err := fs.ReadFile(fsys, schemaPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading syllabus schema")
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err = compiler.AddResource(schemaURL, bytes.NewReader(data)); err != nil {
		return nil, errors.Wrap(err, "adding syllabus schema")
	}
	sch, err := compiler.Compile(schemaURL)
	return sch, errors.Wrap(err, "compiling syllabus schema")
}

// Parse decodes and fully validates a document. Validation problems come back as issues, not as an error.
func Parse(data []byte, format Format, sch *jsonschema.Schema) (Document, []Issue, error) {
	canonical, err := toJSON(data, format)
	if err != nil {
		return Document{}, []Issue{{Path: "$", Message: errors.Cause(err).Error()}}, nil
	}

	var raw interface{}
	if err = json.Unmarshal(canonical, &raw); err != nil {
		return Document{}, []Issue{{Path: "$", Message: "invalid json: " + err.Error()}}, nil
	}
	if sch != nil {
		if err = sch.Validate(raw); err != nil {
			var verr *jsonschema.ValidationError
			if !errors.As(err, &verr) {
				return Document{}, nil, errors.Wrap(err, "validating document")
			}
			return Document{}, schemaIssues(verr), nil
		}
	}

	var doc Document
	if err = json.Unmarshal(canonical, &doc); err != nil {
		return Document{}, []Issue{{Path: "$", Message: err.Error()}}, nil
	}
	return doc, Check(doc), nil
}

// schemaIssues flattens the leaves of a schema validation error.
func schemaIssues(verr *jsonschema.ValidationError) []Issue {
	var issues []Issue
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			issues = append(issues, Issue{Path: pointerToPath(e.InstanceLocation), Message: e.Message})
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(verr)
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })
	return issues
}

// pointerToPath turns "/goal/children/1/title" into "goal.children[1].title".
func pointerToPath(ptr string) string {
	if ptr == "" || ptr == "/" {
		return "$"
	}
	var b strings.Builder
	for _, tok := range strings.Split(strings.TrimPrefix(ptr, "/"), "/") {
		tok = strings.ReplaceAll(strings.ReplaceAll(tok, "~1", "/"), "~0", "~")
		if _, err := strconv.Atoi(tok); err == nil {
			b.WriteString("[" + tok + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(tok)
	}
	return b.String()
}

// Check applies the rules a schema cannot express: depth, sibling title uniqueness and weightages.
// In a sibling group weightages are either all omitted, or each in (0, 100] and summing to 100 ± 0.5.
func Check(doc Document) []Issue {
	var issues []Issue
	report := func(path, format string, args ...interface{}) {
		issues = append(issues, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(doc.Goal.Title) == "" {
		report("goal.title", "title is required")
	}
	if doc.Version > CurrentVersion {
		report("version", "unsupported version %d", doc.Version)
	}
	if doc.Goal.TargetDate != "" {
		if _, err := core.ParseDate(doc.Goal.TargetDate); err != nil {
			report("goal.target_date", "%v", err)
		}
	}

	var checkGroup func(path string, items []Item, depth int)
	checkGroup = func(path string, items []Item, depth int) {
		if len(items) == 0 {
			return
		}
		if depth > maxItemDepth {
			report(path, "too deep: topics cannot have children")
			return
		}

		var (
			weighted, unweighted int
			sum                  float64
		)
		titles := make(map[string]int, len(items))
		for i, item := range items {
			itemPath := fmt.Sprintf("%s[%d]", path, i)
			title := strings.ToLower(strings.TrimSpace(item.Title))
			switch prev, dup := titles[title]; {
			case title == "":
				report(itemPath+".title", "title is required")
			case dup:
				report(itemPath+".title", "duplicate title %q (same as %s[%d])", item.Title, path, prev)
			default:
				titles[title] = i
			}

			if item.Weightage == nil {
				unweighted++
			} else {
				weighted++
				w := *item.Weightage
				if w <= 0 || w > 100 || math.IsNaN(w) {
					report(itemPath+".weightage", "weightage must be greater than 0 and at most 100")
				}
				sum += w
			}
			checkGroup(itemPath+".children", item.Children, depth+1)
		}

		switch {
		case weighted > 0 && unweighted > 0:
			report(path, "weightages must be set on every sibling or on none (%d of %d set)", weighted, len(items))
		case weighted > 0 && !plan.WeightageSumOK(sum):
			report(path, "weightages sum to %s, expected 100", strconv.FormatFloat(core.Round(sum, 2), 'f', -1, 64))
		}
	}
	checkGroup("goal.children", doc.Goal.Children, 1)
	return issues
}

// IssuesError wraps issues into a validation error keyed by path.
func IssuesError(issues []Issue) error {
	fields := make([]core.FieldError, 0, len(issues))
	for _, iss := range issues {
		fields = append(fields, core.FieldError{Field: iss.Path, Error: iss.Message})
	}
	msg := "invalid syllabus"
	if len(issues) == 1 {
		msg = issues[0].Path + ": " + issues[0].Message
	}
	return core.NewValidationError(errors.New(msg), fields...)
}

// Counts tallies the nodes a document creates, per kind.
func Counts(doc Document) map[plan.Kind]int {
	counts := map[plan.Kind]int{plan.KindGoal: 1}
	if doc.Project != "" {
		counts[plan.KindProject] = 1
	}
	var walk func(items []Item, depth int)
	walk = func(items []Item, depth int) {
		if depth > maxItemDepth {
			return
		}
		for _, item := range items {
			counts[itemKinds[depth-1]]++
			walk(item.Children, depth+1)
		}
	}
	walk(doc.Goal.Children, 1)
	return counts
}
