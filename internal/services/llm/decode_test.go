package llm_test

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"memecat/internal/services/llm"
)

func TestParseDescriptionVariants(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    llm.Description
	}{
		{
			name:    "plain",
			content: `{"description":"a cat","category":"animals","keywords":["cat","Cat","keyboard"],"text":"monday"}`,
			want:    llm.Description{Description: "a cat", Category: "animals", Keywords: []string{"cat", "keyboard"}, TextInImage: "monday"},
		},
		{
			name:    "code fence",
			content: "```json\n{\"description\":\"a dog\",\"keywords\":[]}\n```",
			want:    llm.Description{Description: "a dog", Keywords: []string{}},
		},
		{
			name:    "prose around object",
			content: `Sure! Here it is: {"category":"gaming","keywords":"mario, luigi ,"} Hope that helps.`,
			want:    llm.Description{Category: "gaming", Keywords: []string{"mario", "luigi"}},
		},
		{
			name:    "folded duplicates",
			content: `{"description":"street sign","keywords":["Straße","STRASSE","sign"]}`,
			want:    llm.Description{Description: "street sign", Keywords: []string{"Straße", "sign"}},
		},
		{
			name:    "short keys",
			content: `{"opis":"kot","kategoria":"zwierzeta","keywordy":["kot"],"tekst":"poniedzialek"}`,
			want:    llm.Description{Description: "kot", Category: "zwierzeta", Keywords: []string{"kot"}, TextInImage: "poniedzialek"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := llm.ParseDescription(tc.content)
			if err != nil {
				t.Fatalf("ParseDescription: %v", err)
			}
			got.Raw = ""
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestParseDescriptionRejectsEmpty(t *testing.T) {
	for _, content := range []string{"", "no json here", `{"unrelated":true}`, `{"keywords":[" "]}`} {
		if _, err := llm.ParseDescription(content); err == nil {
			t.Fatalf("expected error for %q", content)
		}
	}
}

func TestDecodeLLMJSONSnippet(t *testing.T) {
	var target map[string]any
	err := llm.DecodeLLMJSON(strings.Repeat("x", 400), &target)
	if err == nil {
		t.Fatal("expected decode error")
	}
	if !strings.Contains(err.Error(), "...") {
		t.Fatalf("expected truncated snippet, got %v", err)
	}
}

func TestLoadPrompt(t *testing.T) {
	prompt, err := llm.LoadPrompt("")
	if err != nil {
		t.Fatalf("LoadPrompt default: %v", err)
	}
	if prompt != llm.DefaultPrompt() || !strings.Contains(prompt, "JSON") {
		t.Fatalf("unexpected default prompt %q", prompt)
	}

	path := filepath.Join(t.TempDir(), "prompt.txt")
	if err := os.WriteFile(path, []byte("  custom prompt\n"), 0o644); err != nil {
		t.Fatalf("write prompt: %v", err)
	}
	prompt, err = llm.LoadPrompt(path)
	if err != nil {
		t.Fatalf("LoadPrompt custom: %v", err)
	}
	if prompt != "custom prompt" {
		t.Fatalf("unexpected prompt %q", prompt)
	}

	empty := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write empty prompt: %v", err)
	}
	if _, err := llm.LoadPrompt(empty); err == nil {
		t.Fatal("expected error for empty prompt file")
	}
}
