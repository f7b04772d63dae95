package evaldef

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/yaml.v3"

	"github.com/GhostScientist/assay/internal/models"
)

const capitalsEval = `id: capitals
name: World Capitals
description: Ask for the capital of each country
dataset:
  source: jsonl
  path: datasets/capitals.jsonl
  limit: 50
  shuffle: true
  seed: 42
solver:
  type: generate
  system_prompt: Answer with the city name only.
scorer:
  - type: exact_match
  - type: model_graded
    rubric: Is the answer the correct capital?
    grader_model: gpt-4o-mini
    threshold: 0.8
    labels: [correct, incorrect]
execution:
  max_concurrent: 4
  timeout_seconds: 60
  retries: 2
  model: gpt-4o
`

func evalDoc(id, name string) string {
	return strings.NewReplacer("id: capitals", "id: "+id, "name: World Capitals", "name: "+name).Replace(capitalsEval)
}

func writeEval(t *testing.T, dir, file, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, file)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadOne(t *testing.T) {
	path := writeEval(t, t.TempDir(), "capitals.yaml", capitalsEval)

	def, err := NewLoader(nil).LoadOne(path)
	require.NoError(t, err)

	assert.Equal(t, "capitals", def.ID)
	assert.Equal(t, "World Capitals", def.Name)
	require.NotNil(t, def.Description)
	assert.Equal(t, "Ask for the capital of each country", *def.Description)

	assert.Equal(t, "jsonl", def.Dataset.Source)
	assert.Nil(t, def.Dataset.Split)
	require.NotNil(t, def.Dataset.Limit)
	assert.Equal(t, uint32(50), *def.Dataset.Limit)
	require.NotNil(t, def.Dataset.Seed)
	assert.Equal(t, uint64(42), *def.Dataset.Seed)

	assert.Equal(t, "generate", def.Solver.Type)
	assert.Nil(t, def.Solver.MaxTurns)
	assert.Nil(t, def.Solver.Tools)
	assert.Nil(t, def.Solver.Sandbox)

	require.Len(t, def.Scorer, 2)
	assert.Equal(t, "exact_match", def.Scorer[0].Type)
	assert.Equal(t, 0, def.Scorer[0].Config.Len())

	require.NotNil(t, def.Execution.MaxConcurrent)
	assert.Equal(t, uint32(4), *def.Execution.MaxConcurrent)
	require.NotNil(t, def.Execution.Retries)
	assert.Equal(t, uint32(2), *def.Execution.Retries)
	assert.Equal(t, ModelSingle, def.Execution.Model.Kind)
	assert.Equal(t, []string{"gpt-4o"}, def.Execution.Model.Models())
}

func TestScorerPreservesExtraKeys(t *testing.T) {
	def, err := Parse([]byte(capitalsEval))
	require.NoError(t, err)

	graded := def.Scorer[1]
	assert.Equal(t, "model_graded", graded.Type)
	assert.Equal(t, []string{"rubric", "grader_model", "threshold", "labels"}, graded.Config.Keys())

	rubric, ok := graded.Config.Get("rubric")
	require.True(t, ok)
	assert.Equal(t, "Is the answer the correct capital?", rubric)
	threshold, _ := graded.Config.Get("threshold")
	assert.Equal(t, 0.8, threshold)
	labels, _ := graded.Config.Get("labels")
	assert.Equal(t, []any{"correct", "incorrect"}, labels)
	_, ok = graded.Config.Get("type")
	assert.False(t, ok)

	data, err := json.Marshal(graded)
	require.NoError(t, err)
	assert.Equal(t,
		`{"type":"model_graded","rubric":"Is the answer the correct capital?","grader_model":"gpt-4o-mini","threshold":0.8,"labels":["correct","incorrect"]}`,
		string(data))
}

func TestScorerYAMLRoundTripKeepsOrder(t *testing.T) {
	def, err := Parse([]byte(capitalsEval))
	require.NoError(t, err)

	out, err := yaml.Marshal(def.Scorer[1])
	require.NoError(t, err)
	text := string(out)
	order := []string{"type:", "rubric:", "grader_model:", "threshold:", "labels:"}
	last := -1
	for _, key := range order {
		idx := strings.Index(text, key)
		require.Greater(t, idx, last, "key %s out of order in\n%s", key, text)
		last = idx
	}

	var again ScorerConfig
	require.NoError(t, yaml.Unmarshal(out, &again))
	assert.Equal(t, def.Scorer[1].Type, again.Type)
	assert.Equal(t, def.Scorer[1].Config.Keys(), again.Config.Keys())
}

func TestScorerErrors(t *testing.T) {
	cases := map[string]string{
		"missing type":   "rubric: x\n",
		"numeric type":   "type: 3\n",
		"list type":      "type: [a]\n",
		"not a mapping":  "- exact_match\n",
		"duplicate type": "type: a\ntype: b\n",
		"duplicate key":  "type: a\nrubric: x\nrubric: y\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			var s ScorerConfig
			assert.Error(t, yaml.Unmarshal([]byte(body), &s))
		})
	}
}

func TestScorerNonStringKeysEncodeAsJSON(t *testing.T) {
	var s ScorerConfig
	require.NoError(t, yaml.Unmarshal([]byte("type: lookup\nweights:\n  1: 0.5\n  2: 0.25\n"), &s))

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"lookup","weights":{"1":0.5,"2":0.25}}`, string(data))
}

func TestScorerNestedMappingsKeepOrder(t *testing.T) {
	body := "type: rubric\nparams:\n  zeta: 1\n  alpha: 2\n  steps:\n    - {b: x, a: y}\n"
	var s ScorerConfig
	require.NoError(t, yaml.Unmarshal([]byte(body), &s))

	params, ok := s.Config.Get("params")
	require.True(t, ok)
	nested, ok := params.(*OrderedMap)
	require.True(t, ok, "nested mapping decoded as %T", params)
	assert.Equal(t, []string{"zeta", "alpha", "steps"}, nested.Keys())

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"rubric","params":{"zeta":1,"alpha":2,"steps":[{"b":"x","a":"y"}]}}`, string(data))

	out, err := yaml.Marshal(s)
	require.NoError(t, err)
	text := string(out)
	assert.Less(t, strings.Index(text, "zeta:"), strings.Index(text, "alpha:"), text)
	assert.Less(t, strings.Index(text, "b: x"), strings.Index(text, "a: y"), text)
}

func TestScorerNestedDuplicateKey(t *testing.T) {
	var s ScorerConfig
	assert.Error(t, yaml.Unmarshal([]byte("type: a\nparams:\n  k: 1\n  k: 2\n"), &s))
}

func TestModelRef(t *testing.T) {
	t.Run("single", func(t *testing.T) {
		var m ModelRef
		require.NoError(t, yaml.Unmarshal([]byte(`gpt-4o`), &m))
		assert.Equal(t, SingleModel("gpt-4o"), m)
	})
	t.Run("quoted number is a string", func(t *testing.T) {
		var m ModelRef
		require.NoError(t, yaml.Unmarshal([]byte(`"4"`), &m))
		assert.Equal(t, SingleModel("4"), m)
	})
	t.Run("multiple", func(t *testing.T) {
		var m ModelRef
		require.NoError(t, yaml.Unmarshal([]byte("- gpt-4o\n- claude-3-5-sonnet\n"), &m))
		assert.Equal(t, MultipleModels("gpt-4o", "claude-3-5-sonnet"), m)
	})
	t.Run("empty list", func(t *testing.T) {
		var m ModelRef
		require.NoError(t, yaml.Unmarshal([]byte("[]"), &m))
		assert.Equal(t, ModelMultiple, m.Kind)
		assert.Empty(t, m.IDs)
	})

	for name, body := range map[string]string{
		"number":  "42",
		"bool":    "true",
		"mixed":   "[gpt-4o, 3]",
		"nested":  "[[gpt-4o]]",
		"mapping": "name: gpt-4o",
	} {
		t.Run(name, func(t *testing.T) {
			var m ModelRef
			assert.Error(t, yaml.Unmarshal([]byte(body), &m))
		})
	}
}

func TestModelRefEncoding(t *testing.T) {
	single, err := json.Marshal(SingleModel("gpt-4o"))
	require.NoError(t, err)
	assert.Equal(t, `"gpt-4o"`, string(single))

	multiple, err := json.Marshal(MultipleModels("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, string(multiple))

	out, err := yaml.Marshal(map[string]ModelRef{"model": MultipleModels("a", "b")})
	require.NoError(t, err)
	var back map[string]ModelRef
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, MultipleModels("a", "b"), back["model"])
}

func TestParseMultipleModels(t *testing.T) {
	doc := strings.Replace(capitalsEval, "  model: gpt-4o\n", "  model:\n    - gpt-4o\n    - gpt-4o-mini\n", 1)
	def, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, ModelMultiple, def.Execution.Model.Kind)
	assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini"}, def.Execution.Model.IDs)

	grader, _ := def.Scorer[1].Config.Get("grader_model")
	assert.Equal(t, "gpt-4o-mini", grader)
}

func TestParseKeepsZeroExecutionValues(t *testing.T) {
	doc := strings.NewReplacer(
		"  max_concurrent: 4\n", "  max_concurrent: 0\n",
		"  retries: 2\n", "  retries: 0\n",
	).Replace(capitalsEval)
	def, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.NotNil(t, def.Execution.MaxConcurrent)
	assert.Equal(t, uint32(0), *def.Execution.MaxConcurrent)
	require.NotNil(t, def.Execution.Retries)
	assert.Equal(t, uint32(0), *def.Execution.Retries)

	data, err := json.Marshal(def.Execution)
	require.NoError(t, err)
	assert.JSONEq(t, `{"max_concurrent":0,"timeout_seconds":60,"retries":0,"model":"gpt-4o"}`, string(data))
}

func TestParseRejectsNullScorerEntry(t *testing.T) {
	for name, scorers := range map[string]string{
		"first":  "scorer:\n  - ~\n  - type: model_graded\n",
		"last":   "scorer:\n  - type: exact_match\n  - null\n",
		"inline": "scorer: [~, {type: model_graded}]\n",
	} {
		t.Run(name, func(t *testing.T) {
			start := strings.Index(capitalsEval, "scorer:")
			end := strings.Index(capitalsEval, "execution:")
			doc := capitalsEval[:start] + scorers + capitalsEval[end:]

			_, err := Parse([]byte(doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "null")
		})
	}
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"mixed model list":        strings.Replace(capitalsEval, "  model: gpt-4o\n", "  model: [gpt-4o, 7]\n", 1),
		"mapping model":           strings.Replace(capitalsEval, "  model: gpt-4o\n", "  model: {id: gpt-4o}\n", 1),
		"missing id":              strings.Replace(capitalsEval, "id: capitals\n", "", 1),
		"missing dataset":         strings.Replace(capitalsEval, "  source: jsonl\n  path: datasets/capitals.jsonl\n", "  limit: 1\n", 1),
		"missing solver type":     strings.Replace(capitalsEval, "  type: generate\n", "", 1),
		"missing scorer":          strings.Replace(capitalsEval, "scorer:", "scorers:", 1),
		"missing model":           strings.Replace(capitalsEval, "  model: gpt-4o\n", "", 1),
		"null model":              strings.Replace(capitalsEval, "  model: gpt-4o\n", "  model: ~\n", 1),
		"null scorer":             strings.Replace(capitalsEval, "  - type: exact_match\n", "  - ~\n", 1),
		"scalar scorer":           strings.Replace(capitalsEval, "  - type: exact_match\n", "  - exact_match\n", 1),
		"scorer not a list":       strings.Replace(capitalsEval, "scorer:\n  - type: exact_match\n", "scorer:\n  type: exact_match\n  extra:\n", 1),
		"missing max_concurrent":  strings.Replace(capitalsEval, "  max_concurrent: 4\n", "", 1),
		"missing timeout_seconds": strings.Replace(capitalsEval, "  timeout_seconds: 60\n", "", 1),
		"missing retries":         strings.Replace(capitalsEval, "  retries: 2\n", "", 1),
		"null retries":            strings.Replace(capitalsEval, "  retries: 2\n", "  retries: ~\n", 1),
		"missing execution":       capitalsEval[:strings.Index(capitalsEval, "execution:")],
		"bad limit":               strings.Replace(capitalsEval, "limit: 50", "limit: lots", 1),
		"negative limit":          strings.Replace(capitalsEval, "limit: 50", "limit: -1", 1),
		"not yaml":                "id: [unclosed\n",
		"empty":                   "",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestParseOptionalSolverFields(t *testing.T) {
	doc := strings.Replace(capitalsEval, "  system_prompt: Answer with the city name only.\n",
		"  max_turns: 5\n  tools:\n    - name: search\n      kind: web\n  sandbox:\n    image: python:3.12\n", 1)
	def, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Nil(t, def.Solver.SystemPrompt)
	require.NotNil(t, def.Solver.MaxTurns)
	assert.Equal(t, uint32(5), *def.Solver.MaxTurns)
	require.Len(t, def.Solver.Tools, 1)
	assert.Equal(t, map[string]any{"image": "python:3.12"}, def.Solver.Sandbox)
}

func TestLoadOneErrors(t *testing.T) {
	l := NewLoader(nil)

	_, err := l.LoadOne(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, ErrRead)

	path := writeEval(t, t.TempDir(), "bad.yaml", "id: [unclosed\n")
	_, err = l.LoadOne(path)
	require.ErrorIs(t, err, ErrParse)
	assert.Contains(t, err.Error(), path)
}

func TestListSummariesMissingDir(t *testing.T) {
	summaries, err := NewLoader(nil).ListSummaries(t.TempDir())
	require.NoError(t, err)
	assert.NotNil(t, summaries)
	assert.Empty(t, summaries)
}

func TestListSummariesEmptyDir(t *testing.T) {
	project := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(project, Dir), 0o755))

	summaries, err := NewLoader(nil).ListSummaries(project)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestListSummariesFiltersAndSorts(t *testing.T) {
	project := t.TempDir()
	dir := filepath.Join(project, Dir)
	writeEval(t, dir, "b.yaml", evalDoc("b", "beta"))
	writeEval(t, dir, "a.yml", evalDoc("a", "Alpha"))
	writeEval(t, dir, "c.yaml", evalDoc("c", "Charlie"))
	// Not definitions: wrong or upper-case extension, directories.
	writeEval(t, dir, "notes.txt", "id: [broken")
	writeEval(t, dir, "upper.YAML", "id: [broken")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested.yaml"), 0o755))

	summaries, err := NewLoader(nil).ListSummaries(project)
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, []string{"Alpha", "beta", "Charlie"},
		[]string{summaries[0].Name, summaries[1].Name, summaries[2].Name})
	assert.Equal(t, filepath.Join(dir, "a.yml"), summaries[0].Path)
	require.NotNil(t, summaries[0].Description)
}

func TestListSummariesFailFast(t *testing.T) {
	project := t.TempDir()
	dir := filepath.Join(project, Dir)
	writeEval(t, dir, "a.yaml", evalDoc("a", "Alpha"))
	writeEval(t, dir, "broken.yaml", "scorer: not-a-list\n")
	writeEval(t, dir, "c.yaml", evalDoc("c", "Charlie"))

	l := NewLoader(nil)
	assert.Equal(t, models.FailFast, l.Policy)
	_, err := l.ListSummaries(project)
	require.ErrorIs(t, err, ErrParse)
	assert.Contains(t, err.Error(), "broken.yaml")
}

func TestListSummariesSkipPolicy(t *testing.T) {
	project := t.TempDir()
	dir := filepath.Join(project, Dir)
	writeEval(t, dir, "a.yaml", evalDoc("a", "Alpha"))
	writeEval(t, dir, "broken.yaml", "scorer: not-a-list\n")

	core, logs := observer.New(zapcore.WarnLevel)
	l := NewLoader(zap.New(core))
	l.Policy = models.SkipAndContinue

	summaries, err := l.ListSummaries(project)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, logs.FilterMessage("skipping eval definition").Len())
}

func TestFind(t *testing.T) {
	project := t.TempDir()
	dir := filepath.Join(project, Dir)
	writeEval(t, dir, "a.yaml", evalDoc("alpha", "Alpha"))
	want := writeEval(t, dir, "b.yaml", evalDoc("beta", "Beta"))

	l := NewLoader(nil)
	def, path, err := l.Find(project, "beta")
	require.NoError(t, err)
	assert.Equal(t, "Beta", def.Name)
	assert.Equal(t, want, path)

	_, _, err = l.Find(project, "gamma")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSummaryJSON(t *testing.T) {
	def, err := Parse([]byte(capitalsEval))
	require.NoError(t, err)
	data, err := json.Marshal(def.Summary("/p/evals/capitals.yaml"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"capitals","name":"World Capitals","description":"Ask for the capital of each country","path":"/p/evals/capitals.yaml"}`, string(data))
}

func TestWatch(t *testing.T) {
	project := t.TempDir()
	dir := filepath.Join(project, Dir)
	writeEval(t, dir, "a.yaml", evalDoc("a", "Alpha"))

	var (
		mu    sync.Mutex
		calls [][]EvalSummary
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewLoader(nil).Watch(ctx, project, 20*time.Millisecond, func(s []EvalSummary, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				calls = append(calls, s)
			}
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 1
	}, 2*time.Second, 10*time.Millisecond)

	writeEval(t, dir, "b.yaml", evalDoc("b", "Beta"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) >= 2 && len(calls[len(calls)-1]) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchMissingDir(t *testing.T) {
	err := NewLoader(nil).Watch(context.Background(), t.TempDir(), 0, func([]EvalSummary, error) {})
	require.ErrorIs(t, err, ErrWatch)
}
