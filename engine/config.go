package engine

import (
	"regexp"
	"strings"
	"time"
)

// Session policy defaults.
const (
	DefaultMaxRounds             = 15
	DefaultRepeatTolerance       = 2
	DefaultWriteCap              = 3
	DefaultNoProgressRounds      = 2
	DefaultDuplicateWriteAbort   = 3
	DefaultDuplicateCommandAbort = 3
	DefaultRetryAttempts         = 3
	DefaultRetryDelay            = 150 * time.Millisecond
	DefaultResultCharLimit       = 6000
	DefaultArchivePath           = "/tmp/site.zip"
)

// Config holds the policy thresholds for one session.
type Config struct {
	MaxRounds             int           `mapstructure:"max_rounds" json:"max_rounds"`
	RepeatTolerance       int           `mapstructure:"repeat_tolerance" json:"repeat_tolerance"`
	WriteCap              int           `mapstructure:"write_cap" json:"write_cap"`
	NoProgressRounds      int           `mapstructure:"no_progress_rounds" json:"no_progress_rounds"`
	DuplicateWriteAbort   int           `mapstructure:"duplicate_write_abort" json:"duplicate_write_abort"`
	DuplicateCommandAbort int           `mapstructure:"duplicate_command_abort" json:"duplicate_command_abort"`
	RetryAttempts         int           `mapstructure:"retry_attempts" json:"retry_attempts"`
	RetryDelay            time.Duration `mapstructure:"retry_delay" json:"retry_delay"`
	// ResultCharLimit bounds exec and list output in the digest.
	ResultCharLimit       int           `mapstructure:"result_char_limit" json:"result_char_limit"`

	// IncludeRawLog attaches the per-call log to the Outcome.
	IncludeRawLog bool `mapstructure:"include_raw_log" json:"include_raw_log"`
	// RequiredAnswerField names an answer field that must be non-empty
	// before a final answer is accepted.
	RequiredAnswerField string `mapstructure:"required_answer_field" json:"required_answer_field,omitempty"`

	Vocabulary Vocabulary `mapstructure:"vocabulary" json:"vocabulary"`
}

// DefaultConfig returns the default session policy.
func DefaultConfig() Config {
	return Config{
		MaxRounds:             DefaultMaxRounds,
		RepeatTolerance:       DefaultRepeatTolerance,
		WriteCap:              DefaultWriteCap,
		NoProgressRounds:      DefaultNoProgressRounds,
		DuplicateWriteAbort:   DefaultDuplicateWriteAbort,
		DuplicateCommandAbort: DefaultDuplicateCommandAbort,
		RetryAttempts:         DefaultRetryAttempts,
		RetryDelay:            DefaultRetryDelay,
		ResultCharLimit:       DefaultResultCharLimit,
		Vocabulary:            DefaultVocabulary(),
	}
}

// withDefaults fills zero-valued thresholds from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRounds <= 0 {
		c.MaxRounds = d.MaxRounds
	}
	if c.RepeatTolerance <= 0 {
		c.RepeatTolerance = d.RepeatTolerance
	}
	if c.WriteCap <= 0 {
		c.WriteCap = d.WriteCap
	}
	if c.NoProgressRounds <= 0 {
		c.NoProgressRounds = d.NoProgressRounds
	}
	if c.DuplicateWriteAbort <= 0 {
		c.DuplicateWriteAbort = d.DuplicateWriteAbort
	}
	if c.DuplicateCommandAbort <= 0 {
		c.DuplicateCommandAbort = d.DuplicateCommandAbort
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = d.RetryAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.ResultCharLimit <= 0 {
		c.ResultCharLimit = d.ResultCharLimit
	}
	c.Vocabulary = c.Vocabulary.withDefaults()
	return c
}

// Kind classifies a capability by what it does.
type Kind string

const (
	KindWrite   Kind = "write"
	KindRead    Kind = "read"
	KindExec    Kind = "exec"
	KindList    Kind = "list"
	KindInit    Kind = "init"
	KindPing    Kind = "ping"
	KindDelete  Kind = "delete"
	KindPublish Kind = "publish"
	KindOther   Kind = "other"
)

// Vocabulary names the capabilities the engine treats specially.
type Vocabulary struct {
	Write       string   `mapstructure:"write" json:"write"`
	Read        string   `mapstructure:"read" json:"read"`
	Exec        string   `mapstructure:"exec" json:"exec"`
	List        string   `mapstructure:"list" json:"list"`
	Init        string   `mapstructure:"init" json:"init"`
	Ping        string   `mapstructure:"ping" json:"ping"`
	Delete      string   `mapstructure:"delete" json:"delete"`
	Publish     []string `mapstructure:"publish" json:"publish"`
	ArchivePath string   `mapstructure:"archive_path" json:"archive_path"`
}

// DefaultVocabulary returns the container and pages capability names.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Write:       "container_file_write",
		Read:        "container_file_read",
		Exec:        "container_exec",
		List:        "container_files_list",
		Init:        "container_initialize",
		Ping:        "container_ping",
		Delete:      "container_file_delete",
		Publish:     []string{"pages_upload_prepare", "pages_upload_put", "pages_deploy_from_upload"},
		ArchivePath: DefaultArchivePath,
	}
}

func (v Vocabulary) withDefaults() Vocabulary {
	d := DefaultVocabulary()
	set := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	set(&v.Write, d.Write)
	set(&v.Read, d.Read)
	set(&v.Exec, d.Exec)
	set(&v.List, d.List)
	set(&v.Init, d.Init)
	set(&v.Ping, d.Ping)
	set(&v.Delete, d.Delete)
	set(&v.ArchivePath, d.ArchivePath)
	if v.Publish == nil {
		v.Publish = d.Publish
	}
	return v
}

// Kind classifies name by normalized comparison against the vocabulary.
func (v Vocabulary) Kind(name string) Kind {
	n := normalizeName(name)
	if n == "" {
		return KindOther
	}
	for _, pair := range []struct {
		name string
		kind Kind
	}{
		{v.Write, KindWrite},
		{v.Read, KindRead},
		{v.Exec, KindExec},
		{v.List, KindList},
		{v.Init, KindInit},
		{v.Ping, KindPing},
		{v.Delete, KindDelete},
	} {
		if pair.name != "" && normalizeName(pair.name) == n {
			return pair.kind
		}
	}
	for _, p := range v.Publish {
		if normalizeName(p) == n {
			return KindPublish
		}
	}
	return KindOther
}

// NameFor returns the vocabulary name for a kind, or "" for publish and
// other.
func (v Vocabulary) NameFor(k Kind) string {
	switch k {
	case KindWrite:
		return v.Write
	case KindRead:
		return v.Read
	case KindExec:
		return v.Exec
	case KindList:
		return v.List
	case KindInit:
		return v.Init
	case KindPing:
		return v.Ping
	case KindDelete:
		return v.Delete
	}
	return ""
}

// Known reports whether name belongs to the vocabulary.
func (v Vocabulary) Known(name string) bool {
	return v.Kind(name) != KindOther
}

// DuplicateTolerant reports whether repeating an identical call of this
// capability is acceptable.
func (v Vocabulary) DuplicateTolerant(name string) bool {
	switch v.Kind(name) {
	case KindInit, KindExec:
		return true
	}
	return false
}

var (
	separatorPattern = regexp.MustCompile(`[._\-\s]+`)
	nameSynonyms     = strings.NewReplacer("fileslist", "filelist", "listfiles", "filelist")
)

// normalizeName lower-cases name, drops separators and folds synonyms so
// that "Container.Files-List" and "container_list_files" compare equal.
func normalizeName(name string) string {
	n := separatorPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "")
	return nameSynonyms.Replace(n)
}

// canonicalName rewrites the separators a model tends to invent into
// underscores.
func canonicalName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(strings.TrimSpace(name))
}
