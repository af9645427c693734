package entities

import (
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "MongoDocs", false},
		{"valid with spaces", "Mongo Docs", false},
		{"valid with hyphens", "mongo-docs", false},
		{"valid with underscores", "mongo_docs", false},
		{"valid with numbers", "Docs2", false},
		{"valid starts with number", "7Reference", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"special chars", "Mongo@Docs", true},
		{"starts with hyphen", "-mongo", true},
		{"starts with underscore", "_mongo", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid absolute", "/home/user/project/source", false},
		{"valid relative", "./source", false},
		{"valid simple", "source/tutorial", false},
		{"empty", "", true},
		{"path traversal", "../../../etc/passwd", true},
		{"path traversal middle", "/home/../../../etc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
