package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relgraph/compiler/gen"
)

const projectModel = `name: project
attributes:
  id: { type: INTEGER, primaryKey: true }
  name: { type: STRING, unique: true, allowNull: false }
associations:
  - { type: belongsTo, target: user, as: owner }
  - { type: belongsToMany, target: access_group, through: project_access_groups }
`

const projectData = `project:
  - { name: relgraph, owner: { username: admin }, access_groups: [ { name: Admin } ] }
  - { name: docs, owner: { username: manager } }
`

// workspace writes a configuration, a model and a seed file into a
// temporary directory and returns the configuration path.
func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"models/project.yaml": projectModel,
		"data/projects.yaml":  projectData,
		"relgraph.yaml": fmt.Sprintf(`database:
  dialect: sqlite
  dsn: file:%s?_pragma=foreign_keys(1)
log:
  level: error
access:
  enabled: true
  static_salt: 00112233445566778899aabbccddeeff
models: [ "models/*.yaml" ]
seed:
  files: [ "data/*.yaml" ]
  strict: true
generate:
  output: out
  package: appsession
`, filepath.Join(dir, "app.db")),
	}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return filepath.Join(dir, "relgraph.yaml")
}

func run(ctx context.Context, args ...string) (string, error) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCmd()
	assert.Equal(t, "relgraph", cmd.Use)
	names := make([]string, 0)
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
		assert.NotNil(t, sub.RunE, sub.Name())
	}
	assert.Subset(t, names, []string{"generate", "init", "inspect"})
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	cfg := workspace(t)
	out := filepath.Join(filepath.Dir(cfg), "out")

	_, err := run(ctx, "--config", cfg, "generate", "--check")
	require.Error(t, err)
	assert.True(t, gen.IsStale(err))

	stdout, err := run(ctx, "--config", cfg, "generate")
	require.NoError(t, err)
	assert.Contains(t, stdout, "generated "+out)
	src, err := os.ReadFile(filepath.Join(out, gen.SessionFile))
	require.NoError(t, err)
	assert.Contains(t, string(src), "package appsession")
	assert.Contains(t, string(src), "func (s *Session) SetProjectOwner(")
	assert.Contains(t, string(src), "func (s *Session) AddProjectAccessGroups(")
	assert.FileExists(t, filepath.Join(out, gen.DocsFile))

	stdout, err = run(ctx, "--config", cfg, "generate", "--check")
	require.NoError(t, err)
	assert.Contains(t, stdout, "is up to date")

	model := filepath.Join(filepath.Dir(cfg), "models", "project.yaml")
	require.NoError(t, os.WriteFile(model, []byte(strings.Replace(projectModel, "as: owner", "as: lead", 1)), 0o644))
	_, err = run(ctx, "--config", cfg, "generate", "--check")
	require.Error(t, err)
	var stale *gen.StaleError
	require.ErrorAs(t, err, &stale)
	assert.NotEmpty(t, stale.Got)
}

func TestGenerateFlags(t *testing.T) {
	_, err := run(context.Background(), "--config", workspace(t), "generate", "--check", "--watch")
	assert.ErrorContains(t, err, "mutually exclusive")

	_, err = run(context.Background(), "--config", filepath.Join(t.TempDir(), "missing.yaml"), "generate")
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestGenerateWatch(t *testing.T) {
	cfg := workspace(t)
	dir := filepath.Dir(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := run(ctx, "--config", cfg, "generate", "--watch")
		done <- err
	}()

	team := filepath.Join(dir, "models", "team.yaml")
	session := filepath.Join(dir, "out", gen.SessionFile)
	require.Eventually(t, func() bool {
		if src, err := os.ReadFile(session); err == nil && strings.Contains(string(src), "CreateTeam(") {
			return true
		}
		// rewritten until the watcher picks it up.
		_ = os.WriteFile(team, []byte("name: team\nattributes:\n  id: { type: INTEGER, primaryKey: true }\n"), 0o644)
		return false
	}, 15*time.Second, 2*debounce)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestInspect(t *testing.T) {
	ctx := context.Background()
	cfg := workspace(t)

	stdout, err := run(ctx, "--config", cfg, "inspect")
	require.NoError(t, err)
	assert.Contains(t, stdout, "ENTITY")
	assert.Contains(t, stdout, "addRolePermissions(id, permissionIds...)")
	assert.Contains(t, stdout, "setProjectOwner(id, ownerId)")

	stdout, err = run(ctx, "--config", cfg, "inspect", "--entity", "project")
	require.NoError(t, err)
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n")[1:] {
		assert.True(t, strings.HasPrefix(line, "project "), line)
	}

	stdout, err = run(ctx, "--config", cfg, "inspect", "--edges", "-e", "project")
	require.NoError(t, err)
	assert.Contains(t, stdout, "belongsToMany")
	assert.Contains(t, stdout, "owner")
	assert.Contains(t, stdout, "false", "edges are not loaded before sync")

	_, err = run(ctx, "--config", cfg, "inspect", "--entity", "ghost")
	assert.Error(t, err)
}

func TestInit(t *testing.T) {
	ctx := context.Background()
	cfg := workspace(t)

	stdout, err := run(ctx, "--config", cfg, "init")
	require.NoError(t, err)
	assert.Contains(t, stdout, "synced 9 entities")
	assert.Contains(t, stdout, "inserted 2 project")
	assert.Contains(t, stdout, "inserted 4 user")
	assert.NotContains(t, stdout, "warning")

	db, err := sql.Open("sqlite", filepath.Join(filepath.Dir(cfg), "app.db"))
	require.NoError(t, err)
	defer db.Close()
	var owner string
	require.NoError(t, db.QueryRow(`SELECT "users"."username" FROM "projects" JOIN "users" ON "users"."id" = "projects"."owner_id" WHERE "projects"."name" = 'relgraph'`).Scan(&owner))
	assert.Equal(t, "admin", owner)
	var groups int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "project_access_groups"`).Scan(&groups))
	assert.Equal(t, 1, groups)

	stdout, err = run(ctx, "--config", cfg, "init", "--force", "--no-seed", "--stats")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "inserted")
	assert.Contains(t, stdout, "statements: queries=")
	assert.Contains(t, stdout, "ddl=")
}

func TestDriverDSN(t *testing.T) {
	dsn, err := driverDSN("mysql", "app:secret@tcp(localhost:3306)/app")
	require.NoError(t, err)
	assert.Contains(t, dsn, "clientFoundRows=true")
	assert.Contains(t, dsn, "parseTime=true")

	dsn, err = driverDSN("postgres", "postgres://localhost/app")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/app", dsn)

	_, err = driverDSN("mysql", "not a dsn")
	assert.Error(t, err)
}

func TestIsModelFile(t *testing.T) {
	assert.True(t, isModelFile("models/user.yaml"))
	assert.True(t, isModelFile("models/USER.YML"))
	assert.False(t, isModelFile("out/session.go"))
}
