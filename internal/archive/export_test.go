package archive

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/arc-keeper/internal/errs"
	"github.com/and161185/arc-keeper/internal/model"
)

func TestExportKeyFileWhileKeyHeld(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	a, err := env.m.Create(ctx, "vault", "pw", 1, "", "")
	require.NoError(t, err)
	require.NoError(t, env.m.Attach(ctx, a.ID, "pw"))
	attachedKey := env.runner.stdins[len(env.runner.stdins)-1]

	dir := t.TempDir()
	path, err := env.m.ExportKeyFile(ctx, a.ID, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "vault.locke"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc model.RecoveryKey
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, model.RecoveryInfoLabel, doc.Info)
	assert.Equal(t, "vault", doc.Archive.Name)
	assert.Equal(t, a.ID.String(), doc.Archive.ID)
	assert.Equal(t, attachedKey, doc.Key)
	assert.NotEmpty(t, doc.Date)
}

func TestExportKeyFileRequiresHeldKey(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	a, err := env.m.Create(ctx, "vault", "pw", 1, "", "")
	require.NoError(t, err)

	_, err = env.m.ExportKeyFile(ctx, a.ID, t.TempDir())
	assert.ErrorIs(t, err, errs.ErrKeyNotFound)
}

func TestExportKeyClipboardPipesKey(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	a, err := env.m.Create(ctx, "vault", "pw", 1, "", "")
	require.NoError(t, err)
	require.NoError(t, env.m.Attach(ctx, a.ID, "pw"))
	attachedKey := env.runner.stdins[len(env.runner.stdins)-1]

	require.NoError(t, env.m.ExportKeyClipboard(ctx, a.ID))

	last := env.runner.calls[len(env.runner.calls)-1]
	assert.Equal(t, "/usr/bin/pbcopy", last[0])
	assert.Equal(t, attachedKey, env.runner.stdins[len(env.runner.stdins)-1])
}

func TestRecoverAttachesWithExportedKey(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	a, err := env.m.Create(ctx, "vault", "pw", 1, "", "")
	require.NoError(t, err)
	require.NoError(t, env.m.Attach(ctx, a.ID, "pw"))

	dir := t.TempDir()
	path, err := env.m.ExportKeyFile(ctx, a.ID, dir)
	require.NoError(t, err)
	require.NoError(t, env.m.Detach(ctx, a.ID))

	// The password is "lost"; the recovery file alone reopens the volume.
	require.NoError(t, env.m.Recover(ctx, a.ID, path))

	got, err := env.m.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Attached)

	// And the key is held again, so export works without a password.
	_, held := env.m.heldKey(a.ID)
	assert.True(t, held)
}

func TestRecoverRejectsForeignKey(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	a, err := env.m.Create(ctx, "vault", "pw", 1, "", "")
	require.NoError(t, err)
	b, err := env.m.Create(ctx, "other", "pw", 1, "", "")
	require.NoError(t, err)
	require.NoError(t, env.m.Attach(ctx, b.ID, "pw"))

	path, err := env.m.ExportKeyFile(ctx, b.ID, t.TempDir())
	require.NoError(t, err)

	err = env.m.Recover(ctx, a.ID, path)
	assert.Error(t, err)
}

func TestRecoverRejectsNonRecoveryFile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	a, err := env.m.Create(ctx, "vault", "pw", 1, "", "")
	require.NoError(t, err)

	bogus := filepath.Join(t.TempDir(), "note.locke")
	require.NoError(t, os.WriteFile(bogus, []byte(`{"info":"shopping list"}`), 0o600))

	err = env.m.Recover(ctx, a.ID, bogus)
	assert.Error(t, err)
}

func TestPendingAttachSubmitAndRetry(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	a, err := env.m.Create(ctx, "vault", "pw", 1, "", "")
	require.NoError(t, err)

	op := env.m.BeginAttach(a.ID)
	assert.Equal(t, a.ID, op.ArchiveID())

	// Wrong password: attach fails, the operation stays open.
	env.runner.failOn = "attach"
	err = op.Submit(ctx, "wrong")
	require.ErrorIs(t, err, errs.ErrAttachFailed)

	env.runner.failOn = ""
	require.NoError(t, op.Submit(ctx, "pw"))

	got, err := env.m.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Attached)

	// Closed after success.
	assert.ErrorIs(t, op.Submit(ctx, "pw"), ErrOperationClosed)
}

func TestPendingOperationCancel(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	a, err := env.m.Create(ctx, "vault", "pw", 1, "", "")
	require.NoError(t, err)

	op := env.m.BeginAttach(a.ID)
	op.Cancel()
	assert.ErrorIs(t, op.Submit(ctx, "pw"), ErrOperationClosed)
}

func TestPendingExportKeyFileAttachesToProvePassword(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	a, err := env.m.Create(ctx, "vault", "pw", 1, "", "")
	require.NoError(t, err)

	dir := t.TempDir()
	var gotPath string
	op := env.m.BeginExportKeyFile(a.ID, dir, func(p string) { gotPath = p })
	require.NoError(t, op.Submit(ctx, "pw"))

	assert.Equal(t, filepath.Join(dir, "vault.locke"), gotPath)
	assert.FileExists(t, gotPath)

	// Proving the password attached the volume.
	got, err := env.m.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Attached)
}

func TestPendingExportSkipsAttachWhenKeyHeld(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	a, err := env.m.Create(ctx, "vault", "pw", 1, "", "")
	require.NoError(t, err)
	require.NoError(t, env.m.Attach(ctx, a.ID, "pw"))
	attaches := 0
	for _, s := range env.runner.subcommands() {
		if s == "attach" {
			attaches++
		}
	}
	require.Equal(t, 1, attaches)

	op := env.m.BeginExportKeyClipboard(a.ID)
	require.NoError(t, op.Submit(ctx, ""))

	attaches = 0
	for _, s := range env.runner.subcommands() {
		if s == "attach" {
			attaches++
		}
	}
	assert.Equal(t, 1, attaches)
}
