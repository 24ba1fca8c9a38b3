package archive

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/arc-keeper/internal/backup"
)

type fakeUploader struct {
	localPath  string
	remotePath string
	err        error
}

var _ backup.Uploader = (*fakeUploader)(nil)

func (u *fakeUploader) Upload(_ context.Context, localPath, remotePath string, report backup.ReportFunc) error {
	u.localPath = localPath
	u.remotePath = remotePath
	if u.err != nil {
		return u.err
	}
	if report != nil {
		report(0.5)
		report(1)
	}
	return nil
}

func TestCloudBackupZipsUploadsAndCleansUp(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	up := &fakeUploader{}
	env.m.uploader = up

	a, err := env.m.Create(ctx, "vault", "pw", 1, "", "")
	require.NoError(t, err)

	var values []float64
	require.NoError(t, env.m.CloudBackup(ctx, a.ID, func(f float64) {
		values = append(values, f)
	}))

	assert.Contains(t, up.remotePath, "vault-")
	assert.Contains(t, up.remotePath, ".zip")

	// Zip progress maps to 0–0.5, upload to 0.5–1, and 1 closes it out.
	require.NotEmpty(t, values)
	for i := 1; i < len(values); i++ {
		assert.LessOrEqual(t, values[i-1], values[i])
	}
	assert.Equal(t, 1.0, values[len(values)-1])

	// The temporary zip is gone.
	_, err = os.Stat(up.localPath)
	assert.True(t, os.IsNotExist(err))
}

func TestCloudBackupRefusedWhileAttached(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.m.uploader = &fakeUploader{}

	a, err := env.m.Create(ctx, "vault", "pw", 1, "", "")
	require.NoError(t, err)
	require.NoError(t, env.m.Attach(ctx, a.ID, "pw"))

	err = env.m.CloudBackup(ctx, a.ID, nil)
	assert.Error(t, err)
}

func TestCloudBackupWithoutUploader(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	a, err := env.m.Create(ctx, "vault", "pw", 1, "", "")
	require.NoError(t, err)

	err = env.m.CloudBackup(ctx, a.ID, nil)
	assert.Error(t, err)
}
