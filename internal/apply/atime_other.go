//go:build !linux

package apply

import (
	"io/fs"
	"time"
)

func accessTime(info fs.FileInfo) time.Time { return info.ModTime() }
