// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tmpfstesting provides ogletest/oglematchers matchers for asserting
// against tmpfs.Stat_t values and errno.Kind failures, adapted from
// fusetesting's os.FileInfo matchers (which this library has no use for: it
// never hands callers an os.FileInfo, only its own Stat_t).
package tmpfstesting

import (
	"errors"
	"fmt"
	"time"

	"github.com/jacobsa/oglematchers"

	"github.com/go-tmpfs/tmpfs"
	"github.com/go-tmpfs/tmpfs/errno"
)

// MtimeIs matches a tmpfs.Stat_t whose Mtime equals expected.
func MtimeIs(expected time.Time) oglematchers.Matcher {
	return oglematchers.NewMatcher(
		func(c interface{}) error { return timeFieldIs(c, "Mtime", expected) },
		fmt.Sprintf("mtime is %v", expected))
}

// AtimeIs matches a tmpfs.Stat_t whose Atime equals expected.
func AtimeIs(expected time.Time) oglematchers.Matcher {
	return oglematchers.NewMatcher(
		func(c interface{}) error { return timeFieldIs(c, "Atime", expected) },
		fmt.Sprintf("atime is %v", expected))
}

// CtimeIs matches a tmpfs.Stat_t whose Ctime equals expected.
func CtimeIs(expected time.Time) oglematchers.Matcher {
	return oglematchers.NewMatcher(
		func(c interface{}) error { return timeFieldIs(c, "Ctime", expected) },
		fmt.Sprintf("ctime is %v", expected))
}

func timeFieldIs(c interface{}, field string, expected time.Time) error {
	st, ok := c.(tmpfs.Stat_t)
	if !ok {
		return fmt.Errorf("which is not a tmpfs.Stat_t")
	}

	var got time.Time
	switch field {
	case "Mtime":
		got = st.Mtime
	case "Atime":
		got = st.Atime
	case "Ctime":
		got = st.Ctime
	}

	if !got.Equal(expected) {
		return fmt.Errorf("which has %s %v, off by %v", field, got, got.Sub(expected))
	}
	return nil
}

// ErrnoIs matches an error whose errno.Kind equals want (e.g. errno.ENOENT).
func ErrnoIs(want errno.Kind) oglematchers.Matcher {
	return oglematchers.NewMatcher(
		func(c interface{}) error { return errnoIs(c, want) },
		fmt.Sprintf("has errno %v", want))
}

func errnoIs(c interface{}, want errno.Kind) error {
	err, ok := c.(error)
	if !ok {
		if c == nil {
			return fmt.Errorf("which is nil, not an error with errno %v", want)
		}
		return fmt.Errorf("which is not an error")
	}

	var k errno.Kind
	if !errors.As(err, &k) {
		return fmt.Errorf("which is %v, not an errno.Kind", err)
	}
	if k != want {
		return fmt.Errorf("which has errno %v, want %v", k, want)
	}
	return nil
}
