package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/snowflakedb/gosnowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
)

var envVars = []string{
	"INPUT_PATH", "INPUT_FORMAT", "INPUT_SHEET", "INPUT_TABLE", "STUDY_FILE", "OUTPUT_DIR",
	"WRITE_WORKBOOK", "KEY_COLUMN", "STD_DDOF", "JOIN_CARDINALITY", "MISSING_EXCLUDE",
	"SINK_DRIVER", "SINK_DSN", "SINK_SCHEMA", "SINK_BATCH_SIZE",
	"KMEANS_CLUSTERS", "KMEANS_N_INIT", "KMEANS_MAX_ITER", "KMEANS_TOL", "KMEANS_SEED",
	"KMEANS_WORKERS", "KMEANS_MAX_K", "KMEANS_STANDARDIZE", "LOG_LEVEL", "LOG_FORMAT",
	"POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB", "POSTGRES_HOST", "POSTGRES_PORT",
	"SNOWFLAKE_USER", "SNOWFLAKE_PASSWORD", "SNOWFLAKE_ACCOUNT", "SNOWFLAKE_WAREHOUSE",
	"SNOWFLAKE_AUTHENTICATOR", "SNOWFLAKE_ROLE",
}

// clearEnv unsets every variable the loader reads, restoring them afterwards
func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range envVars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}

const studyYAML = `
name: test
groups:
  - name: bkg
    columns: [GENDER_R, C_D05]
  - name: lit
    columns: [PVLIT1, PVLIT2]
missing_codes:
  9999: not_stated
variables:
  C_D05:
    label: Employment status
    value_labels:
      1: Employed
      2: Unemployed
    missing_codes:
      9: not_stated
      6: valid_skip
profile_column: GENDER_R
subset: [GENDER_R, PVLIT1]
`

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "output", cfg.OutputDir)
	assert.True(t, cfg.WriteWorkbook)
	assert.Equal(t, "SEQID", cfg.KeyColumn)
	assert.Equal(t, 1, cfg.StdDDOF)
	assert.Equal(t, "one_to_one", cfg.JoinCardinality)
	assert.Nil(t, cfg.Sink)
	assert.Nil(t, cfg.Snowflake)
	assert.Equal(t, KMeansConfig{Clusters: 6, NInit: 25, MaxIter: 300, Tol: 1e-4, MaxK: 9}, cfg.KMeans)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Len(t, cfg.Study.Groups, 3)
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	study := filepath.Join(dir, "study.yaml")
	require.NoError(t, os.WriteFile(study, []byte(studyYAML), 0o644))

	envFile := filepath.Join(dir, ".env")
	content := "STUDY_FILE=" + study + "\n" +
		"OUTPUT_DIR=" + filepath.Join(dir, "out") + "\n" +
		"STD_DDOF=0\n" +
		"MISSING_EXCLUDE=system_missing, not_stated\n" +
		"KMEANS_CLUSTERS=4\n" +
		"KMEANS_TOL=0.001\n" +
		"KMEANS_STANDARDIZE=true\n" +
		"KMEANS_SEED=42\n" +
		"SINK_DRIVER=sqlite\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))
	// the process environment wins over the file
	t.Setenv("KMEANS_MAX_K", "5")

	cfg, err := LoadConfig(envFile)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Study.Name)
	assert.Equal(t, 0, cfg.StdDDOF)
	assert.Equal(t, []string{"system_missing", "not_stated"}, cfg.MissingExclude)
	assert.Equal(t, 4, cfg.KMeans.Clusters)
	assert.Equal(t, 0.001, cfg.KMeans.Tol)
	assert.True(t, cfg.KMeans.Standardize)
	assert.Equal(t, int64(42), cfg.KMeans.Seed)
	assert.Equal(t, 5, cfg.KMeans.MaxK)
	require.NotNil(t, cfg.Sink)
	assert.Equal(t, "sqlite", cfg.Sink.Driver)
	assert.Equal(t, "piaac.db", cfg.Sink.DSN)
	assert.Equal(t, 500, cfg.Sink.BatchSize)

	policy, err := cfg.MissingPolicy()
	require.NoError(t, err)
	assert.Equal(t, model.ReasonNotStated, policy.Codes[9999])
	assert.False(t, policy.Exclude[model.ReasonValidSkip])
	assert.True(t, policy.Exclude[model.ReasonNotStated])
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"ddof", map[string]string{"STD_DDOF": "2"}, "STD_DDOF"},
		{"cardinality", map[string]string{"JOIN_CARDINALITY": "one_to_many"}, "JOIN_CARDINALITY"},
		{"format", map[string]string{"INPUT_FORMAT": "sav"}, "INPUT_FORMAT"},
		{"clusters", map[string]string{"KMEANS_CLUSTERS": "0"}, "cluster count"},
		{"sink", map[string]string{"SINK_DRIVER": "mysql"}, "unsupported sink driver"},
		{"postgres sink", map[string]string{"SINK_DRIVER": "pgx"}, "POSTGRES_USER"},
		{"snowflake", map[string]string{"INPUT_FORMAT": "snowflake"}, "SNOWFLAKE_USER"},
		{"study", map[string]string{"STUDY_FILE": "/nonexistent/study.yaml"}, "study"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig("")
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadSinkConfigPostgres(t *testing.T) {
	clearEnv(t)
	t.Setenv("POSTGRES_USER", "analyst")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "survey")

	sink, pg, err := LoadSinkConfig("postgres")
	require.NoError(t, err)
	assert.Equal(t, "pgx", sink.Driver)
	assert.Equal(t, "piaac", sink.Schema)
	assert.Equal(t, "host=localhost port=5432 user=analyst password=secret dbname=survey sslmode=disable", sink.DSN)
	require.NotNil(t, pg)
	assert.Equal(t, 25, pg.MaxOpenConns)

	t.Setenv("SINK_DSN", "postgres://u:p@db/piaac")
	sink, pg, err = LoadSinkConfig("pgx")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db/piaac", sink.DSN)
	assert.Equal(t, "postgres://u:p@db/piaac", pg.ConnectionString())
}

func TestLoadSnowflakeConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("SNOWFLAKE_USER", "user@example.org")
	t.Setenv("SNOWFLAKE_PASSWORD", "pw")
	t.Setenv("SNOWFLAKE_ACCOUNT", "acme-1")
	t.Setenv("SNOWFLAKE_WAREHOUSE", "WH")
	t.Setenv("SNOWFLAKE_AUTHENTICATOR", "jwt")
	t.Setenv("SNOWFLAKE_ROLE", "ANALYST")

	cfg, err := LoadSnowflakeConfig()
	require.NoError(t, err)
	assert.Equal(t, gosnowflake.AuthTypeJwt, cfg.Authenticator)
	assert.Equal(t, "PIAAC", cfg.Database)
	assert.Equal(t, "PUBLIC", cfg.Schema)
	assert.Contains(t, cfg.ConnectionString(), "user%40example.org:pw@acme-1/PIAAC/PUBLIC?warehouse=WH")
	assert.Contains(t, cfg.ConnectionString(), "&role=ANALYST")
}

func TestParseStudy(t *testing.T) {
	s, err := ParseStudy([]byte(studyYAML))
	require.NoError(t, err)

	assert.Equal(t, "SEQID", s.Key)
	g, ok := s.Group("lit")
	require.True(t, ok)
	assert.Equal(t, []string{"SEQID", "PVLIT1", "PVLIT2"}, s.SelectColumns(g))
	_, ok = s.Group("num")
	assert.False(t, ok)

	v := s.Variables["C_D05"]
	assert.Equal(t, "Employed", v.ValueLabels[1])
	assert.Equal(t, model.ReasonValidSkip, v.MissingCodes[6])
	assert.Equal(t, model.ReasonNotStated, s.MissingCodes[9999])
}

func TestParseStudyInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "groups: [{name: a, columns: [X]}]\ncolour: red\n", "colour"},
		{"no groups", "name: empty\n", "at least one variable group"},
		{"key listed", "groups: [{name: a, columns: [SEQID, X]}]\n", "lists the key"},
		{"shared column", "groups: [{name: a, columns: [X]}, {name: b, columns: [X]}]\n", "appears in groups"},
		{"duplicate group", "groups: [{name: a, columns: [X]}, {name: a, columns: [Y]}]\n", "defined twice"},
		{"profile", "groups: [{name: a, columns: [X]}]\nprofile_column: Y\n", "profile column"},
		{"subset", "groups: [{name: a, columns: [X]}]\nsubset: [Z]\n", "subset column"},
		{"reason", "groups: [{name: a, columns: [X]}]\nmissing_codes: {9: unknowable}\n", "unknowable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStudy([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestStudyAnnotate(t *testing.T) {
	s, err := ParseStudy([]byte(studyYAML))
	require.NoError(t, err)

	raw := model.NewTable("raw", []model.Column{
		{Name: "SEQID", Kind: model.KindNumber},
		{Name: "C_D05", Kind: model.KindNumber},
	})
	raw.AppendRow([]model.Value{model.Number(1), model.Number(6)})

	out := s.Annotate(raw)
	col, ok := out.Column("C_D05")
	require.True(t, ok)
	assert.Equal(t, "Employment status", col.Label)
	assert.Equal(t, "Unemployed", col.LabelFor(2))
	assert.Nil(t, raw.Columns[1].MissingCodes, "input columns are not modified")

	policy, err := s.Policy([]string{"not_stated"})
	require.NoError(t, err)
	assert.False(t, policy.IsMissing(col, out.Rows[0][1]), "valid skip is kept")

	policy, err = s.Policy(nil)
	require.NoError(t, err)
	assert.True(t, policy.IsMissing(col, out.Rows[0][1]))

	_, err = s.Policy([]string{"maybe"})
	assert.Error(t, err)
}

func TestDefaultStudy(t *testing.T) {
	s := DefaultStudy()
	require.NoError(t, s.Validate())
	assert.Equal(t, "SEQID", s.Key)
	lit, ok := s.Group("lit")
	require.True(t, ok)
	assert.Len(t, lit.Columns, 10)
	assert.Equal(t, "PVLIT10", lit.Columns[9])
	assert.Equal(t, "GENDER_R", s.ProfileColumn)
}
