package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	treeMaxDepth    = 3
	treeFilesPerDir = 15
	treeMaxLines    = 80
)

// Tree renders a compact view of the project under root: directories up to
// three levels deep, at most 15 files each, 80 lines in total. Hidden
// directories (including .cto and .git) are skipped.
func Tree(root string) string {
	var lines []string
	walkTree(root, filepath.Base(root), 0, &lines)
	if len(lines) > treeMaxLines {
		lines = lines[:treeMaxLines]
	}
	return strings.Join(lines, "\n")
}

func walkTree(dir, name string, depth int, lines *[]string) {
	if len(*lines) >= treeMaxLines {
		return
	}
	indent := strings.Repeat("  ", depth)
	*lines = append(*lines, indent+name+"/")

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var dirs, files []string
	for _, e := range entries {
		switch {
		case e.IsDir() && strings.HasPrefix(e.Name(), "."):
		case e.IsDir():
			dirs = append(dirs, e.Name())
		default:
			files = append(files, e.Name())
		}
	}

	for i, f := range files {
		if i == treeFilesPerDir {
			*lines = append(*lines, fmt.Sprintf("%s  ... and %d more", indent, len(files)-treeFilesPerDir))
			break
		}
		*lines = append(*lines, indent+"  "+f)
	}

	if depth >= treeMaxDepth {
		return
	}
	for _, d := range dirs {
		walkTree(filepath.Join(dir, d), d, depth+1, lines)
	}
}
