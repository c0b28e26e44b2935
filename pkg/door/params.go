// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package door

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ParamFile stores door parameters as newline separated decimal integers
type ParamFile struct {
	Path  string
	Count int
}

// NewParamFile returns the parameter file for the named vector in dir
func NewParamFile(dir, name string, count int) *ParamFile {
	return &ParamFile{Path: filepath.Join(dir, name), Count: count}
}

// Load reads the parameters. It reports false, with no error, when the file
// is absent, has the wrong number of lines or holds a non-integer.
func (f *ParamFile) Load() ([]int, bool) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, false
	}

	var params []int
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		v, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
		if err != nil {
			return nil, false
		}
		params = append(params, v)
	}
	if sc.Err() != nil || len(params) != f.Count {
		return nil, false
	}
	return params, true
}

// Save rewrites the file with params
func (f *ParamFile) Save(params []int) error {
	var buf bytes.Buffer
	for _, p := range params {
		fmt.Fprintf(&buf, "%d\n", p)
	}

	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", f.Path, err)
	}
	return nil
}
