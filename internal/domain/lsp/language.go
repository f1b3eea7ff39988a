package lsp

// Language is a static registry entry describing everything the
// multiplexer, project detection, and the direct-invocation back end need
// to know about one programming language.
type Language struct {
	Name string

	// Extensions are the filename extensions (including the leading dot)
	// this language claims for both discovery and the direct back end.
	Extensions []string

	// Markers are project-marker filenames whose presence directly in the
	// candidate root directory indicates the language is in use.
	Markers []string

	// ExtensionOnly is set for languages detected purely by the presence of
	// source files rather than a project marker (e.g. Lua).
	ExtensionOnly bool

	// ServerCommand launches a stdio-speaking LSP server. Empty if this
	// language has no LSP integration.
	ServerCommand []string

	// ServerOnGlobalPath is true when ServerCommand[0] is expected to
	// resolve via the normal executable search path rather than a
	// project-local install.
	ServerOnGlobalPath bool

	// LocalCandidates are additional paths, relative to the project root,
	// to probe for a project-local install of the direct-invocation tool
	// (e.g. node_modules/.bin/tsc).
	LocalCandidates []string

	// DirectCommand is the argument vector template used by the
	// direct-invocation back end's default (non-specialized) checker.
	// Specialized checkers (TypeScript, Python, Go, Scala) build their own
	// argument vectors and ignore this field.
	DirectCommand []string
}

// Registry is the static table of all known languages.
var Registry = []Language{
	{
		Name:               "go",
		Extensions:         []string{".go"},
		Markers:            []string{"go.mod"},
		ServerCommand:      []string{"gopls", "serve"},
		ServerOnGlobalPath: true,
		DirectCommand:      []string{"go", "vet", "./..."},
	},
	{
		Name:               "python",
		Extensions:         []string{".py"},
		Markers:            []string{"requirements.txt", "pyproject.toml", "Pipfile", "setup.py"},
		ServerCommand:      []string{"pyright-langserver", "--stdio"},
		ServerOnGlobalPath: true,
		LocalCandidates:    []string{".venv/bin/pyright", "venv/bin/pyright"},
	},
	{
		Name:               "typescript",
		Extensions:         []string{".ts", ".tsx"},
		Markers:            []string{"tsconfig.json"},
		ServerCommand:      []string{"typescript-language-server", "--stdio"},
		ServerOnGlobalPath: true,
		LocalCandidates:    []string{"node_modules/.bin/tsc"},
	},
	{
		Name:               "javascript",
		Extensions:         []string{".js", ".jsx", ".mjs", ".cjs"},
		Markers:            []string{"package.json"},
		ServerCommand:      []string{"typescript-language-server", "--stdio"},
		ServerOnGlobalPath: true,
	},
	{
		Name:               "rust",
		Extensions:         []string{".rs"},
		Markers:            []string{"Cargo.toml"},
		ServerCommand:      []string{"rust-analyzer"},
		ServerOnGlobalPath: true,
		DirectCommand:      []string{"rustc", "--edition", "2021", "--crate-type", "lib", "--emit=metadata", "-o", "/dev/null"},
	},
	{
		Name:               "java",
		Extensions:         []string{".java"},
		Markers:            []string{"pom.xml", "build.gradle", "build.gradle.kts"},
		ServerCommand:      []string{"jdtls"},
		ServerOnGlobalPath: true,
		DirectCommand:      []string{"javac", "-Xlint:all", "-d"},
	},
	{
		Name:               "scala",
		Extensions:         []string{".scala"},
		Markers:            []string{"build.sbt"},
		ServerCommand:      []string{"metals"},
		ServerOnGlobalPath: true,
		DirectCommand:      []string{"scalac"},
	},
	{
		Name:               "c",
		Extensions:         []string{".c", ".h"},
		Markers:            []string{"Makefile", "CMakeLists.txt"},
		ServerCommand:      []string{"clangd"},
		ServerOnGlobalPath: true,
		DirectCommand:      []string{"gcc", "-fsyntax-only", "-Wall"},
	},
	{
		Name:               "cpp",
		Extensions:         []string{".cpp", ".cc", ".cxx", ".hpp"},
		Markers:            []string{"CMakeLists.txt"},
		ServerCommand:      []string{"clangd"},
		ServerOnGlobalPath: true,
		DirectCommand:      []string{"g++", "-fsyntax-only", "-Wall"},
	},
	{
		Name:               "php",
		Extensions:         []string{".php"},
		Markers:            []string{"composer.json"},
		ServerCommand:      []string{"intelephense", "--stdio"},
		ServerOnGlobalPath: true,
		DirectCommand:      []string{"php", "-l"},
	},
	{
		Name:          "lua",
		Extensions:    []string{".lua"},
		ExtensionOnly: true,
		DirectCommand: []string{"luac", "-p"},
	},
	{
		Name:               "elixir",
		Extensions:         []string{".ex", ".exs"},
		Markers:            []string{"mix.exs"},
		ServerCommand:      []string{"elixir-ls"},
		ServerOnGlobalPath: true,
		DirectCommand:      []string{"elixirc", "--warnings-as-errors", "-o", "/dev/null"},
	},
	{
		Name:          "terraform",
		Extensions:    []string{".tf"},
		Markers:       []string{".terraform"},
		ExtensionOnly: true,
		DirectCommand: []string{"terraform", "validate", "-json"},
	},
}

// ByExtension returns the language whose Extensions list contains ext
// (including the leading dot), and whether one was found.
func ByExtension(ext string) (Language, bool) {
	for _, l := range Registry {
		for _, e := range l.Extensions {
			if e == ext {
				return l, true
			}
		}
	}
	return Language{}, false
}

// ByName returns the language with the given display name.
func ByName(name string) (Language, bool) {
	for _, l := range Registry {
		if l.Name == name {
			return l, true
		}
	}
	return Language{}, false
}
