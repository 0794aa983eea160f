package status

import (
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/require"

	"github.com/cinit-dev/cinit/internal/program"
)

func TestSnapshot_RunningProgramCarriesPID(t *testing.T) {
	r := &program.Record{Name: "web", Kind: program.Oneshot, State: program.Running, PID: 4242}
	out, err := Snapshot([]*program.Record{r})
	require.NoError(t, err)

	var doc Document
	require.NoError(t, yaml.Unmarshal(out, &doc))
	require.NotEmpty(t, doc.SnapshotID)
	require.Len(t, doc.Programs, 1)
	require.Equal(t, "web", doc.Programs[0].Name)
	require.Equal(t, "running", doc.Programs[0].State)
	require.NotNil(t, doc.Programs[0].PID)
	require.Equal(t, 4242, *doc.Programs[0].PID)
	require.Nil(t, doc.Programs[0].ExitCode)
}

func TestSnapshot_CrashedProgramCarriesExitCode(t *testing.T) {
	code := 7
	r := &program.Record{Name: "migrate", Kind: program.Oneshot, State: program.Crashed, ExitCode: &code}
	out, err := Snapshot([]*program.Record{r})
	require.NoError(t, err)

	var doc Document
	require.NoError(t, yaml.Unmarshal(out, &doc))
	require.Len(t, doc.Programs, 1)
	require.Equal(t, "crashed", doc.Programs[0].State)
	require.NotNil(t, doc.Programs[0].ExitCode)
	require.Equal(t, 7, *doc.Programs[0].ExitCode)
	require.Nil(t, doc.Programs[0].PID)
}

func TestSnapshot_SleepingCronjobCarriesScheduledAt(t *testing.T) {
	at := time.Now()
	r := &program.Record{Name: "backup", Kind: program.Cronjob, State: program.Sleeping, ScheduledAt: &at}
	out, err := Snapshot([]*program.Record{r})
	require.NoError(t, err)

	var doc Document
	require.NoError(t, yaml.Unmarshal(out, &doc))
	require.Len(t, doc.Programs, 1)
	require.NotNil(t, doc.Programs[0].ScheduledAt)
}

func TestSnapshot_BlockedProgramHasNoPIDOrExitCode(t *testing.T) {
	r := &program.Record{Name: "waiter", Kind: program.Oneshot, State: program.Blocked}
	out, err := Snapshot([]*program.Record{r})
	require.NoError(t, err)

	var doc Document
	require.NoError(t, yaml.Unmarshal(out, &doc))
	require.Nil(t, doc.Programs[0].PID)
	require.Nil(t, doc.Programs[0].ExitCode)
	require.Nil(t, doc.Programs[0].ScheduledAt)
}
