// Package templates embeds the default prompt templates shipped with kai.
package templates

import (
	"embed"
	"io/fs"
)

// promptTemplates holds one markdown template per agent type:
//   - prompts/worker.md
//   - prompts/secretary.md
//   - prompts/boss.md
//   - prompts/recycler.md
//   - prompts/custom.md (fallback for user-defined types)
//
//go:embed prompts
var promptTemplates embed.FS

// PromptsFS returns the embedded default prompts, rooted at the prompts directory.
func PromptsFS() fs.FS {
	sub, err := fs.Sub(promptTemplates, "prompts")
	if err != nil {
		// fs.Sub only fails on an invalid path; "prompts" is a constant.
		panic(err)
	}
	return sub
}
