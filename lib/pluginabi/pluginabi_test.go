// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package pluginabi

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
)

func TestSingletonConstructsOnce(t *testing.T) {
	calls := 0
	construct := Singleton(func() (Plugin, error) {
		calls++
		return PluginFunc(func(context.Context, Args) error { return nil }), nil
	})

	first, err := construct()
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	second, _ := construct()
	if calls != 1 {
		t.Fatalf("constructor ran %d times, want 1", calls)
	}
	if first == nil || second == nil {
		t.Fatal("construct returned nil plugin")
	}
}

func TestSingletonKeepsError(t *testing.T) {
	failure := errors.New("no license")
	construct := Singleton(func() (Plugin, error) { return nil, failure })
	for range 2 {
		if _, err := construct(); !errors.Is(err, failure) {
			t.Fatalf("construct error = %v, want %v", err, failure)
		}
	}
}

func TestRoleString(t *testing.T) {
	if FrontEnd.String() != "front-end" || BackEnd.String() != "back-end" {
		t.Errorf("role names = %s, %s", FrontEnd, BackEnd)
	}
	if Role(9).String() != "role(9)" {
		t.Errorf("unknown role = %s", Role(9))
	}
}

func TestSymbolsCarryABIVersion(t *testing.T) {
	suffix := "V" + strconv.Itoa(ABIVersion)
	for _, symbol := range []string{EntrySymbol, FilterSymbol} {
		if !strings.HasSuffix(symbol, suffix) {
			t.Errorf("symbol %q does not end in %q", symbol, suffix)
		}
	}
}
