package entities

import "testing"

func TestNewFileId(t *testing.T) {
	tests := []struct {
		name string
		root string
		p    string
		want FileId
	}{
		{"already relative", "", "index.txt", "index.txt"},
		{"rerooted absolute", "/proj/source", "/proj/source/tutorial/install.txt", "tutorial/install.txt"},
		{"leading slash stripped", "", "/page.rst", "page.rst"},
		{"windows separators normalized", "", `tutorial\install.txt`, "tutorial/install.txt"},
		{"dot segments cleaned", "", "./a/../b.txt", "b.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewFileId(tt.root, tt.p); got != tt.want {
				t.Errorf("NewFileId(%q, %q) = %q, want %q", tt.root, tt.p, got, tt.want)
			}
		})
	}
}

func TestFileId_Slug(t *testing.T) {
	tests := []struct {
		id   FileId
		want string
	}{
		{"index.txt", "index"},
		{"tutorial/install.rst", "tutorial/install"},
		{"steps/foo.yaml", "steps/foo"},
		{"images/diagram.png", "images/diagram.png"},
	}
	for _, tt := range tests {
		if got := tt.id.Slug(); got != tt.want {
			t.Errorf("%q.Slug() = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestFileId_DirHTML(t *testing.T) {
	tests := []struct {
		id   FileId
		want string
	}{
		{"tutorial/install.txt", "tutorial/install/"},
		{"index.txt", ""},
		{"a/index.txt", "a/"},
	}
	for _, tt := range tests {
		if got := tt.id.DirHTML(); got != tt.want {
			t.Errorf("%q.DirHTML() = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestFileId_IsGizaYAML(t *testing.T) {
	tests := []struct {
		id       FileId
		wantCat  string
		wantOK   bool
	}{
		{"steps-install.yaml", "steps", true},
		{"extracts-common.yaml", "extracts", true},
		{"release-4.4.yaml", "release", true},
		{"published-branches-server.yaml", "published-branches", true},
		{"config.yaml", "", false},
		{"index.txt", "", false},
	}
	for _, tt := range tests {
		cat, ok := tt.id.IsGizaYAML()
		if ok != tt.wantOK || cat != tt.wantCat {
			t.Errorf("%q.IsGizaYAML() = (%q, %v), want (%q, %v)", tt.id, cat, ok, tt.wantCat, tt.wantOK)
		}
	}
}

func TestFileId_Join(t *testing.T) {
	id := FileId("tutorial/install.txt")
	if got := id.Join("../other.rst"); got != "other.rst" {
		t.Errorf("Join(..) = %q, want %q", got, "other.rst")
	}
	if got := id.Join("images/x.png"); got != "tutorial/images/x.png" {
		t.Errorf("Join(images/x.png) = %q, want %q", got, "tutorial/images/x.png")
	}
}
