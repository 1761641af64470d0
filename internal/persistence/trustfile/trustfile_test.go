package trustfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gemcraft.ai/internal/gems/model"
)

func TestMissingFileIsEmpty(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "trusts.yml"), zerolog.Nop())
	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	s := New(filepath.Join(t.TempDir(), "sub", "trusts.yml"), zerolog.Nop())
	a, b := uuid.New(), uuid.New()

	require.NoError(t, s.Save(ctx, map[model.ActorID][]model.ActorID{a: {b}, b: {}}))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[model.ActorID][]model.ActorID{a: {b}}, got)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, a.String()+":\n    - "+b.String()+"\n", string(raw))
}

func TestLoadSkipsInvalidIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trusts.yml")
	a, b := uuid.New(), uuid.New()
	doc := a.String() + ":\n  - " + b.String() + "\n  - bogus\nnot-a-uuid:\n  - " + a.String() + "\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	got, err := New(path, zerolog.Nop()).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[model.ActorID][]model.ActorID{a: {b}}, got)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trusts.yml")
	require.NoError(t, os.WriteFile(path, []byte("- just\n- a list\n"), 0o644))
	_, err := New(path, zerolog.Nop()).Load(context.Background())
	assert.Error(t, err)
}
