package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cjeanneret/ddh/internal/logic/motion"
)

// webPortFlag implements flag.Value for --web: --web= or --web 8080 → 8080, --web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }

func checkFinite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be finite, got %g", name, v)
	}
	return nil
}

// moveTarget picks the single move mode that was given a value pair.
func moveTarget(args map[string][]float64) (mode string, u, v float64, err error) {
	var given []string
	for _, m := range motion.Modes() {
		if len(args[m]) > 0 {
			given = append(given, m)
		}
	}
	switch len(given) {
	case 0:
		return "", 0, 0, fmt.Errorf("one of --%s is required", strings.Join(motion.Modes(), ", --"))
	case 1:
	default:
		return "", 0, 0, fmt.Errorf("only one target allowed, got --%s", strings.Join(given, " and --"))
	}

	mode = given[0]
	vals := args[mode]
	if len(vals) != 2 {
		return "", 0, 0, fmt.Errorf("--%s takes two values, got %d", mode, len(vals))
	}
	for _, x := range vals {
		if err := checkFinite(mode, x); err != nil {
			return "", 0, 0, err
		}
	}
	return mode, vals[0], vals[1], nil
}
