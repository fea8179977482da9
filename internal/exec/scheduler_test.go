package exec

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgecomet/buildgraph/internal/graph"
)

func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(cwd) })
	return dir
}

func buildS1(t *testing.T) (r1, r2 *graph.Rule) {
	t.Helper()
	r1 = graph.NewRule("raw")
	require.NoError(t, r1.AddOutput("data/{sample}.raw"))
	r1.SetAction(func(ctx context.Context, inputs, outputs []string, binding map[string]string) error {
		return os.WriteFile(outputs[0], []byte("raw-"+binding["sample"]), 0o644)
	})

	r2 = graph.NewRule("clean")
	require.NoError(t, r2.AddInput("data/{sample}.raw"))
	require.NoError(t, r2.AddOutput("data/{sample}.clean"))
	r2.SetAction(func(ctx context.Context, inputs, outputs []string, binding map[string]string) error {
		data, err := os.ReadFile(inputs[0])
		if err != nil {
			return err
		}
		return os.WriteFile(outputs[0], append(data, []byte("+clean")...), 0o644)
	})
	return r1, r2
}

func TestExecute_S1_ProducesFinalFile(t *testing.T) {
	chdir(t)
	require.NoError(t, os.MkdirAll("data", 0o755))

	r1, r2 := buildS1(t)
	pl := graph.NewPlanner([]*graph.Rule{r1, r2})
	target := "data/s1.clean"
	job, err := pl.Plan(r2, &target, false, false, false)
	require.NoError(t, err)

	sched := NewScheduler(2)
	require.NoError(t, sched.Execute(context.Background(), job))

	content, err := os.ReadFile("data/s1.clean")
	require.NoError(t, err)
	assert.Equal(t, "raw-s1+clean", string(content))
}

func TestExecute_S6_FailureCleansUpOutputs(t *testing.T) {
	chdir(t)
	require.NoError(t, os.MkdirAll("out", 0o755))

	r := graph.NewRule("fails")
	require.NoError(t, r.AddOutput("out/{x}.txt"))
	r.SetAction(func(ctx context.Context, inputs, outputs []string, binding map[string]string) error {
		require.NoError(t, os.WriteFile(outputs[0], []byte("partial"), 0o644))
		return errors.New("boom")
	})

	consumer := graph.NewRule("consumer")
	require.NoError(t, consumer.AddInput("out/{x}.txt"))
	require.NoError(t, consumer.AddOutput("out/{x}.done"))
	var consumerRan atomic.Bool
	consumer.SetAction(func(ctx context.Context, inputs, outputs []string, binding map[string]string) error {
		consumerRan.Store(true)
		return os.WriteFile(outputs[0], []byte("done"), 0o644)
	})

	pl := graph.NewPlanner([]*graph.Rule{r, consumer})
	target := "out/a.done"
	job, err := pl.Plan(consumer, &target, false, false, false)
	require.NoError(t, err)

	sched := NewScheduler(2)
	err = sched.Execute(context.Background(), job)
	require.Error(t, err)

	var actionFailed *graph.ActionFailedError
	assert.ErrorAs(t, err, &actionFailed)

	_, statErr := os.Stat("out/a.txt")
	assert.True(t, os.IsNotExist(statErr), "output must be removed after ActionFailed")
	assert.False(t, consumerRan.Load(), "dependent job must not run after an upstream failure")
}

func TestExecute_SkipsWhenNotNeedsRun(t *testing.T) {
	chdir(t)
	require.NoError(t, os.MkdirAll("data", 0o755))

	require.NoError(t, os.WriteFile("data/s1.raw", []byte("raw-s1"), 0o644))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile("data/s1.clean", []byte("raw-s1+clean"), 0o644))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes("data/s1.clean", future, future))

	r1, r2 := buildS1(t)
	var r1Ran atomic.Bool
	r1.SetAction(func(ctx context.Context, inputs, outputs []string, binding map[string]string) error {
		r1Ran.Store(true)
		return os.WriteFile(outputs[0], []byte("raw-"+binding["sample"]), 0o644)
	})

	pl := graph.NewPlanner([]*graph.Rule{r1, r2})
	target := "data/s1.clean"
	job, err := pl.Plan(r2, &target, false, false, false)
	require.NoError(t, err)

	sched := NewScheduler(2)
	require.NoError(t, sched.Execute(context.Background(), job))
	assert.False(t, r1Ran.Load())
}

// TestExecute_DependencyOrdering verifies spec property 7: for every edge
// j -> k in the DAG, k starts only after j completes.
func TestExecute_DependencyOrdering(t *testing.T) {
	chdir(t)
	require.NoError(t, os.MkdirAll("data", 0o755))

	var mu sync.Mutex
	var rawEnd, cleanStart time.Time

	r1, r2 := buildS1(t)
	r1.SetAction(func(ctx context.Context, inputs, outputs []string, binding map[string]string) error {
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		rawEnd = time.Now()
		mu.Unlock()
		return os.WriteFile(outputs[0], []byte("raw-"+binding["sample"]), 0o644)
	})
	r2.SetAction(func(ctx context.Context, inputs, outputs []string, binding map[string]string) error {
		mu.Lock()
		cleanStart = time.Now()
		mu.Unlock()
		data, err := os.ReadFile(inputs[0])
		if err != nil {
			return err
		}
		return os.WriteFile(outputs[0], append(data, []byte("+clean")...), 0o644)
	})

	pl := graph.NewPlanner([]*graph.Rule{r1, r2})
	target := filepath.Join("data", "s1.clean")
	job, err := pl.Plan(r2, &target, false, false, false)
	require.NoError(t, err)

	sched := NewScheduler(2)
	require.NoError(t, sched.Execute(context.Background(), job))

	assert.True(t, cleanStart.After(rawEnd))
}
