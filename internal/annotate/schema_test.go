package annotate

import (
	"strings"
	"testing"

	"github.com/snapgloss/snapgloss/internal/document"
)

func TestParseBatchResult(t *testing.T) {
	t.Run("plain json", func(t *testing.T) {
		content := `{"items":[{"i":0,"p":"nǐ hǎo","t":"hello"},{"i":1,"p":"xièxie","t":"thanks"}]}`

		result, err := parseBatchResult(content)
		if err != nil {
			t.Fatalf("parseBatchResult failed: %v", err)
		}
		if len(result.Items) != 2 {
			t.Fatalf("expected 2 items, got %d", len(result.Items))
		}
		if result.Items[0].Index != 0 || result.Items[0].Pinyin != "nǐ hǎo" {
			t.Errorf("unexpected first item: %+v", result.Items[0])
		}
		if result.Items[1].Translation != "thanks" {
			t.Errorf("unexpected second item: %+v", result.Items[1])
		}
	})

	t.Run("fenced json", func(t *testing.T) {
		content := "```json\n{\"items\":[{\"i\":0,\"p\":\"hǎo\",\"t\":\"good\"}]}\n```"

		result, err := parseBatchResult(content)
		if err != nil {
			t.Fatalf("parseBatchResult failed: %v", err)
		}
		if len(result.Items) != 1 || result.Items[0].Pinyin != "hǎo" {
			t.Errorf("unexpected result: %+v", result.Items)
		}
	})

	t.Run("json with surrounding prose", func(t *testing.T) {
		content := `Here are the annotations: {"items":[{"i":0,"p":"hǎo","t":"good"}]} Done.`

		result, err := parseBatchResult(content)
		if err != nil {
			t.Fatalf("parseBatchResult failed: %v", err)
		}
		if len(result.Items) != 1 {
			t.Errorf("expected 1 item, got %d", len(result.Items))
		}
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		if _, err := parseBatchResult(`not json at all`); err == nil {
			t.Error("expected error for malformed output")
		}
	})

	t.Run("rejects missing field", func(t *testing.T) {
		// "t" missing from the item.
		content := `{"items":[{"i":0,"p":"hǎo"}]}`

		_, err := parseBatchResult(content)
		if err == nil {
			t.Fatal("expected schema validation error")
		}
		if !strings.Contains(err.Error(), "schema") {
			t.Errorf("expected schema error, got: %v", err)
		}
	})

	t.Run("rejects wrong shape", func(t *testing.T) {
		if _, err := parseBatchResult(`{"annotations":[]}`); err == nil {
			t.Error("expected schema validation error for wrong shape")
		}
	})

	t.Run("rejects empty output", func(t *testing.T) {
		if _, err := parseBatchResult("   "); err == nil {
			t.Error("expected error for empty output")
		}
	})
}

func TestBuildUserPrompt(t *testing.T) {
	prompt := buildUserPrompt([]string{"你好", "第二\n行"}, document.ScriptTraditional)

	if !strings.Contains(prompt, "Traditional Chinese") {
		t.Errorf("expected script label in prompt:\n%s", prompt)
	}
	if !strings.Contains(prompt, "0: 你好\n") {
		t.Errorf("expected numbered first line:\n%s", prompt)
	}
	// Embedded newlines must not break the one-line-per-entry layout.
	if !strings.Contains(prompt, "1: 第二 行\n") {
		t.Errorf("expected flattened second line:\n%s", prompt)
	}

	simplified := buildUserPrompt([]string{"好"}, document.ScriptSimplified)
	if !strings.Contains(simplified, "Simplified Chinese") {
		t.Errorf("expected simplified script label:\n%s", simplified)
	}
}
