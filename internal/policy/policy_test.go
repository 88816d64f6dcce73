package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codesearch/engine/internal/gitignore"
	"github.com/codesearch/engine/internal/idxconfig"
)

func defaultCfg() *idxconfig.Config {
	return idxconfig.Default()
}

func TestDenylistDirectoryAlwaysBlocks(t *testing.T) {
	p := New(defaultCfg(), nil)
	d := p.Evaluate(Candidate{RelPath: "node_modules/lib/index.js", SizeBytes: 10})
	assert.False(t, d.ShouldIndex)
	assert.Equal(t, CategoryDenylist, d.Category)
}

func TestDenylistBeatsUserInclude(t *testing.T) {
	cfg := defaultCfg()
	cfg.Include = []string{"**/*"}
	p := New(cfg, nil)
	d := p.Evaluate(Candidate{RelPath: ".git/HEAD", SizeBytes: 10})
	assert.False(t, d.ShouldIndex)
	assert.Equal(t, CategoryDenylist, d.Category)
}

func TestCredentialFilePatternBlocked(t *testing.T) {
	p := New(defaultCfg(), nil)
	d := p.Evaluate(Candidate{RelPath: "config/.env", SizeBytes: 10})
	assert.False(t, d.ShouldIndex)
	assert.Equal(t, CategoryDenylist, d.Category)
}

func TestBinaryExtensionBlocked(t *testing.T) {
	p := New(defaultCfg(), nil)
	d := p.Evaluate(Candidate{RelPath: "assets/logo.png", SizeBytes: 10})
	assert.False(t, d.ShouldIndex)
	assert.Equal(t, CategoryBinary, d.Category)
}

func TestUserExcludeGlobBlocks(t *testing.T) {
	cfg := defaultCfg()
	cfg.Exclude = []string{"**/*.gen.go"}
	p := New(cfg, nil)
	d := p.Evaluate(Candidate{RelPath: "internal/foo/foo.gen.go", SizeBytes: 10})
	assert.False(t, d.ShouldIndex)
	assert.Equal(t, CategoryPattern, d.Category)
}

func TestGitignoreBlocksWhenRespected(t *testing.T) {
	m := gitignore.New()
	m.AddPattern("*.log")
	cfg := defaultCfg()
	cfg.RespectGitignore = true
	p := New(cfg, m)
	d := p.Evaluate(Candidate{RelPath: "server.log", SizeBytes: 10})
	assert.False(t, d.ShouldIndex)
	assert.Equal(t, CategoryIgnored, d.Category)
}

func TestGitignoreIgnoredWhenRespectGitignoreFalse(t *testing.T) {
	m := gitignore.New()
	m.AddPattern("*.log")
	cfg := defaultCfg()
	cfg.RespectGitignore = false
	p := New(cfg, m)
	d := p.Evaluate(Candidate{RelPath: "server.log", SizeBytes: 10})
	assert.True(t, d.ShouldIndex)
}

func TestSizeCapRejectsLargeFile(t *testing.T) {
	cfg := defaultCfg()
	cfg.MaxFileSize = "1KB"
	p := New(cfg, nil)
	d := p.Evaluate(Candidate{RelPath: "big.go", SizeBytes: 2048})
	assert.False(t, d.ShouldIndex)
	assert.Equal(t, CategorySize, d.Category)
}

func TestUserIncludeMustMatch(t *testing.T) {
	cfg := defaultCfg()
	cfg.Include = []string{"**/*.go"}
	p := New(cfg, nil)

	accepted := p.Evaluate(Candidate{RelPath: "main.go", SizeBytes: 10})
	assert.True(t, accepted.ShouldIndex)

	rejected := p.Evaluate(Candidate{RelPath: "README.md", SizeBytes: 10})
	assert.False(t, rejected.ShouldIndex)
	assert.Equal(t, CategoryPattern, rejected.Category)
}

func TestFileCapRejectsBeyondLimit(t *testing.T) {
	cfg := defaultCfg()
	cfg.MaxFiles = 2
	p := New(cfg, nil)

	assert.True(t, p.Evaluate(Candidate{RelPath: "a.go", SizeBytes: 10}).ShouldIndex)
	assert.True(t, p.Evaluate(Candidate{RelPath: "b.go", SizeBytes: 10}).ShouldIndex)

	d := p.Evaluate(Candidate{RelPath: "c.go", SizeBytes: 10})
	assert.False(t, d.ShouldIndex)
	assert.Equal(t, CategorySize, d.Category)
	assert.Equal(t, 2, p.Accepted())
}

func TestPlainFileAccepted(t *testing.T) {
	p := New(defaultCfg(), nil)
	d := p.Evaluate(Candidate{RelPath: "internal/foo/foo.go", SizeBytes: 100})
	assert.True(t, d.ShouldIndex)
	assert.Empty(t, d.Reason)
}
