// Package workspace defines the port for lightweight filesystem/VCS checks
// used to validate reconstructed state against reality.
package workspace

import "context"

// Probe answers point questions about a project workspace. Implementations
// must be cheap; every call backs a single validation penalty.
type Probe interface {
	// DirectoryExists reports whether path exists and is a directory.
	DirectoryExists(ctx context.Context, path string) bool

	// BranchExists reports whether branch exists in the repository at repoPath.
	BranchExists(ctx context.Context, repoPath, branch string) bool

	// FileExists reports whether the file exists under repoPath.
	FileExists(ctx context.Context, repoPath, relPath string) bool
}
