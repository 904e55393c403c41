package avctl

import (
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Option is a single engine option, as passed to [Session.SetOption]() or
// [Session.SetOptionInt]().
type Option struct {
	Category OptionCategory
	Key      string
	Value    string
	IntValue int64
	IsInt    bool
}

// Options is an ordered set of engine options, typically loaded from a
// TOML profile with [LoadOptions]().
type Options []Option

// option profile sections, one per category
var optionSections = []struct {
	name     string
	category OptionCategory
}{
	{"format", OptFormat},
	{"codec", OptCodec},
	{"sws", OptSWS},
	{"player", OptPlayer},
}

// LoadOptions reads engine option profiles from TOML files such as:
//
//	[format]
//	rtsp_transport = "tcp"
//	[player]
//	start-on-prepared = 1
//	loop = true
//
// Files are loaded in order and later ones override earlier ones. Missing
// files are skipped. Integers and booleans become integer options, any
// other value is passed as a string.
func LoadOptions(paths ...string) (Options, error) {
	k := koanf.New(".")
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading options from %s: %w", path, err)
		}
	}

	var opts Options
	for _, section := range optionSections {
		values := k.Cut(section.name).All()
		keys := make([]string, 0, len(values))
		for key := range values {
			keys = append(keys, key)
		}
		slices.Sort(keys)

		for _, key := range keys {
			opt, err := newOption(section.category, key, values[key])
			if err != nil {
				return nil, err
			}
			opts = append(opts, opt)
		}
	}
	return opts, nil
}

func newOption(category OptionCategory, key string, value any) (Option, error) {
	opt := Option{Category: category, Key: key}
	switch v := value.(type) {
	case string:
		opt.Value = v
	case bool:
		opt.IntValue, opt.IsInt = boolToInt(v), true
	case int64:
		opt.IntValue, opt.IsInt = v, true
	case int:
		opt.IntValue, opt.IsInt = int64(v), true
	case float64:
		opt.Value = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return opt, fmt.Errorf("%w: %s option %q has unsupported type %T", ErrInvalidArgument, category, key, value)
	}
	return opt, nil
}

// Apply sets every option on the session, in order.
func (opts Options) Apply(s *Session) {
	for _, opt := range opts {
		if opt.IsInt {
			s.SetOptionInt(opt.Category, opt.Key, opt.IntValue)
		} else {
			s.SetOption(opt.Category, opt.Key, opt.Value)
		}
	}
}
