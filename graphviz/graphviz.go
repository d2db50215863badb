// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package graphviz provides types and functions for invoking Graphviz
// layout programs to render exported assembly graphs.
package graphviz

import (
	"errors"
	"os/exec"
	"strings"

	"github.com/biogo/external"
)

type Dot struct {
	// Usage: dot -T<format> -o <file> <file>
	//
	// For details relating to options and parameters, see the Graphviz
	// manual.
	//
	Cmd string `buildarg:"{{if .}}{{.}}{{else}}dot{{end}}"` // dot

	Layout string `buildarg:"{{with .}}-K{{.}}{{end}}"`          // -K<layout>
	Format string `buildarg:"{{with .}}-T{{.}}{{end}}"`          // -T<format>
	Out    string `buildarg:"{{with .}}-o{{split}}{{.}}{{end}}"` // -o <file>
	In     string `buildarg:"{{if .}}{{.}}{{end}}"`              // <file>

	// ExtraFlags will be passed through to dot as flags.
	ExtraFlags string
}

func (d Dot) BuildCommand() (*exec.Cmd, error) {
	if d.Format == "" {
		return nil, errors.New("graphviz: missing format")
	}
	if d.In == "" {
		return nil, errors.New("graphviz: missing input filename")
	}
	var extra []string
	if d.ExtraFlags != "" {
		extra = strings.Split(d.ExtraFlags, " ")
	}
	cl := external.Must(external.Build(d))
	return exec.Command(cl[0], append(cl[1:], extra...)...), nil
}

// Render renders the DOT file at path to the given format beside the
// input, returning the output file name.
func Render(path, format string) (string, error) {
	out := strings.TrimSuffix(path, ".dot") + "." + format
	cmd, err := Dot{Format: format, Out: out, In: path}.BuildCommand()
	if err != nil {
		return "", err
	}
	err = cmd.Run()
	if err != nil {
		return "", err
	}
	return out, nil
}
