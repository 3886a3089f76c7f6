// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2014-2025 Canonical Ltd
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

package osutil

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Allow disabling sync for testing. This brings massive improvements on
// certain filesystems (like btrfs) and very much noticeable improvements in
// all unit tests in general.
var unsafeIO bool = len(os.Args) > 0 && strings.HasSuffix(os.Args[0], ".test") && GetenvBool("STAGE1_UNSAFE_IO")

// AtomicWriteFile works like os.WriteFile() but the content is first
// written to a temporary file in the same directory which is then synced
// and renamed over the target, so that readers see either the old or the
// new content.
func AtomicWriteFile(filename string, data []byte, perm os.FileMode) (err error) {
	return AtomicWrite(filename, bytes.NewReader(data), perm)
}

// AtomicWrite is AtomicWriteFile for a stream of content.
func AtomicWrite(filename string, reader io.Reader, perm os.FileMode) (err error) {
	dir := filepath.Dir(filename)
	fd, err := os.CreateTemp(dir, filepath.Base(filename)+".*")
	if err != nil {
		return err
	}
	tmp := fd.Name()
	renamed := false
	defer func() {
		if !renamed {
			fd.Close()
			os.Remove(tmp)
		}
	}()

	if err := fd.Chmod(perm); err != nil {
		return err
	}
	if _, err := io.Copy(fd, reader); err != nil {
		return err
	}
	if !unsafeIO {
		if err := fd.Sync(); err != nil {
			return err
		}
	}
	if err := os.Rename(tmp, filename); err != nil {
		return err
	}
	// it is now too late to clean up
	renamed = true

	if !unsafeIO {
		d, err := os.Open(dir)
		if err != nil {
			return err
		}
		defer d.Close()
		if err := d.Sync(); err != nil {
			return err
		}
	}

	// given we called Sync before, Close _shouldn't_ be able to
	// fail. Still, stuff happens.
	return fd.Close()
}

// CopyFile copies src to dst atomically, dst gets the permissions of src.
func CopyFile(src, dst string) error {
	fin, err := os.Open(src)
	if err != nil {
		return err
	}
	defer fin.Close()

	fi, err := fin.Stat()
	if err != nil {
		return err
	}
	return AtomicWrite(dst, fin, fi.Mode().Perm())
}
