// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2016-2025 Canonical Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package testutil

import (
	"fmt"
	"reflect"

	"gopkg.in/check.v1"
)

// BaseTest is a structure used as a base test suite for many of the pieces
// of stage1.
type BaseTest struct {
	cleanupHandlers []func()
}

// SetUpTest prepares the cleanup
func (s *BaseTest) SetUpTest(c *check.C) {
	if len(s.cleanupHandlers) != 0 {
		panic("BaseTest cleanup handlers were not consumed before a new test start, missing BaseTest.TearDownTest call?")
	}
}

// TearDownTest runs the cleanup handlers
func (s *BaseTest) TearDownTest(c *check.C) {
	// run cleanup handlers in reverse order and clear the list
	for i := len(s.cleanupHandlers) - 1; i >= 0; i-- {
		s.cleanupHandlers[i]()
	}
	s.cleanupHandlers = nil
}

// AddCleanup adds a new cleanup function to the test
func (s *BaseTest) AddCleanup(f func()) {
	s.cleanupHandlers = append(s.cleanupHandlers, f)
}

// Backup takes a number of pointers and returns a function that restores
// the values they point to at the time Backup was called.
func Backup(ptrs ...interface{}) (restore func()) {
	values := make([]reflect.Value, len(ptrs))
	for i, ptr := range ptrs {
		v := reflect.ValueOf(ptr)
		if v.Kind() != reflect.Ptr {
			panic(fmt.Sprintf("Backup can only backup pointers, not %T", ptr))
		}
		saved := reflect.New(v.Elem().Type()).Elem()
		saved.Set(v.Elem())
		values[i] = saved
	}
	return func() {
		for i, ptr := range ptrs {
			reflect.ValueOf(ptr).Elem().Set(values[i])
		}
	}
}
