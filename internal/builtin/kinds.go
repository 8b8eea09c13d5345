package builtin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/weft/internal/audit"
	"github.com/roach88/weft/internal/engine"
)

// sleepPoll is how often sleep checks for termination.
const sleepPoll = 5 * time.Millisecond

func first(kind string, args []any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%s: no input", kind)
	}
	return args[0], nil
}

func text(kind string, args []any) (string, error) {
	v, err := first(kind, args)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: want string input, got %T", kind, v)
	}
	return s, nil
}

func newCat(args []any) (engine.Func, error) {
	var fixed string
	switch len(args) {
	case 0:
	case 1:
		s, err := stringArg("cat", args, 0)
		if err != nil {
			return nil, err
		}
		fixed = s
	default:
		return nil, fmt.Errorf("cat: want at most 1 arg, got %d", len(args))
	}

	return func(_ context.Context, inputs ...any) (any, error) {
		path := fixed
		if path == "" {
			s, err := text("cat", inputs)
			if err != nil {
				return nil, err
			}
			path = s
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cat: %w", err)
		}
		return string(data), nil
	}, nil
}

func lines(_ context.Context, args ...any) (any, error) {
	s, err := text("lines", args)
	if err != nil {
		return nil, err
	}
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return []string{}, nil
	}
	return strings.Split(s, "\n"), nil
}

func sortValues(_ context.Context, args ...any) (any, error) {
	v, err := first("sort", args)
	if err != nil {
		return nil, err
	}
	items, ok := audit.Elements(v)
	if !ok {
		return nil, fmt.Errorf("sort: want a list, got %T", v)
	}

	strs := make([]string, 0, len(items))
	ints := make([]int, 0, len(items))
	for _, it := range items {
		switch x := it.(type) {
		case string:
			strs = append(strs, x)
		case int:
			ints = append(ints, x)
		default:
			return nil, fmt.Errorf("sort: unsupported element %T", it)
		}
	}
	switch {
	case len(ints) == 0:
		slices.Sort(strs)
		return strs, nil
	case len(strs) == 0:
		slices.Sort(ints)
		return ints, nil
	default:
		return nil, errors.New("sort: mixed strings and integers")
	}
}

func upcase(_ context.Context, args ...any) (any, error) {
	v, err := first("upcase", args)
	if err != nil {
		return nil, err
	}
	upper := cases.Upper(language.Und)
	if s, ok := v.(string); ok {
		return upper.String(s), nil
	}
	items, ok := audit.Elements(v)
	if !ok {
		return nil, fmt.Errorf("upcase: want string or list, got %T", v)
	}
	out := make([]string, len(items))
	for i, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("upcase: element %d is %T", i, it)
		}
		out[i] = upper.String(s)
	}
	return out, nil
}

func newAffix(kind string, before bool) Factory {
	return func(args []any) (engine.Func, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s: want 1 arg, got %d", kind, len(args))
		}
		affix, err := stringArg(kind, args, 0)
		if err != nil {
			return nil, err
		}
		return func(_ context.Context, inputs ...any) (any, error) {
			v, err := first(kind, inputs)
			if err != nil {
				return nil, err
			}
			if before {
				return affix + fmt.Sprint(v), nil
			}
			return fmt.Sprint(v) + affix, nil
		}, nil
	}
}

func count(_ context.Context, args ...any) (any, error) {
	if len(args) == 0 || args[0] == nil {
		return 0, nil
	}
	if s, ok := args[0].(string); ok {
		return utf8.RuneCountInString(s), nil
	}
	items, ok := audit.Elements(args[0])
	if !ok {
		return nil, fmt.Errorf("count: want string or list, got %T", args[0])
	}
	return len(items), nil
}

func newConcat(args []any) (engine.Func, error) {
	sep := ""
	switch len(args) {
	case 0:
	case 1:
		s, err := stringArg("concat", args, 0)
		if err != nil {
			return nil, err
		}
		sep = s
	default:
		return nil, fmt.Errorf("concat: want at most 1 arg, got %d", len(args))
	}

	return func(_ context.Context, inputs ...any) (any, error) {
		if len(inputs) == 1 {
			if items, ok := audit.Elements(inputs[0]); ok {
				inputs = items
			}
		}
		parts := make([]string, len(inputs))
		for i, in := range inputs {
			parts[i] = fmt.Sprint(in)
		}
		return strings.Join(parts, sep), nil
	}, nil
}

func echo(_ context.Context, args ...any) (any, error) {
	switch len(args) {
	case 0:
		return nil, nil
	case 1:
		return args[0], nil
	default:
		return slices.Clone(args), nil
	}
}

func newSleep(args []any) (engine.Func, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("sleep: want 1 arg, got %d", len(args))
	}
	var d time.Duration
	switch v := args[0].(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("sleep: %w", err)
		}
		d = parsed
	case int:
		d = time.Duration(v) * time.Millisecond
	default:
		return nil, fmt.Errorf("sleep: want duration string or milliseconds, got %T", v)
	}

	return func(ctx context.Context, inputs ...any) (any, error) {
		e, _ := engine.FromContext(ctx)
		deadline := time.NewTimer(d)
		defer deadline.Stop()
		tick := time.NewTicker(sleepPoll)
		defer tick.Stop()

		for {
			if e != nil {
				if err := e.CheckTerminate(ctx); err != nil {
					return nil, err
				}
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-deadline.C:
				return echo(ctx, inputs...)
			case <-tick.C:
			}
		}
	}, nil
}

func newFail(args []any) (engine.Func, error) {
	msg := "failed"
	if len(args) > 0 {
		s, err := stringArg("fail", args, 0)
		if err != nil {
			return nil, err
		}
		msg = s
	}
	return func(context.Context, ...any) (any, error) {
		return nil, errors.New(msg)
	}, nil
}

func nonEmpty(a *audit.Audit) (int, bool) {
	switch v := a.Value.(type) {
	case nil:
		return 1, true
	case string:
		if v == "" {
			return 1, true
		}
		return 0, true
	}
	if items, ok := audit.Elements(a.Value); ok && len(items) == 0 {
		return 1, true
	}
	return 0, true
}

func parity(a *audit.Audit) (int, bool) {
	var n int64
	switch v := a.Value.(type) {
	case int:
		n = int64(v)
	case int64:
		n = v
	default:
		return 0, false
	}
	if n%2 == 0 {
		return 0, true
	}
	return 1, true
}

func never(*audit.Audit) (int, bool) {
	return 0, false
}
