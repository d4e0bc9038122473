package telegram

import (
	"html"
	"strings"
	"testing"
)

func TestSplitMessageRespectsLimit(t *testing.T) {
	text := strings.Repeat("a", 3000) + "\n\n" + strings.Repeat("b", 2000) + "\n" + strings.Repeat("c", 500)

	parts := SplitMessage(text, 0)
	if len(parts) != 2 {
		t.Fatalf("ожидали 2 части, получили %d", len(parts))
	}
	for i, part := range parts {
		if length := len([]rune(part)); length > messageLimit {
			t.Fatalf("часть %d превышает предел: %d", i, length)
		}
	}
	if parts[0] != strings.Repeat("a", 3000) {
		t.Fatalf("неожиданное содержимое первой части")
	}
	if !strings.HasPrefix(parts[1], "b") || !strings.HasSuffix(parts[1], strings.Repeat("c", 500)) {
		t.Fatalf("вторая часть должна содержать блоки b и c")
	}
}

func TestSplitMessageCutsLongLine(t *testing.T) {
	parts := SplitMessage(strings.Repeat("ж", 25), 10)
	if len(parts) != 3 {
		t.Fatalf("ожидали 3 части, получили %d", len(parts))
	}
	if parts[0] != strings.Repeat("ж", 10) || parts[2] != strings.Repeat("ж", 5) {
		t.Fatalf("неожиданное деление: %q", parts)
	}
}

func TestSplitMessageShortText(t *testing.T) {
	parts := SplitMessage("hello world", 0)
	if len(parts) != 1 || parts[0] != "hello world" {
		t.Fatalf("неожиданный результат: %q", parts)
	}
}

func TestSplitMessageEmpty(t *testing.T) {
	if parts := SplitMessage("   \n  ", 0); len(parts) != 0 {
		t.Fatalf("пустой текст не должен давать частей, получили %d", len(parts))
	}
}

func TestSplitMessageKeepsEntitiesWhole(t *testing.T) {
	parts := SplitMessage(strings.Repeat("a", 8)+"&amp;bb", 10)
	if len(parts) != 2 || parts[0] != strings.Repeat("a", 8) || parts[1] != "&amp;bb" {
		t.Fatalf("сущность не должна разрезаться: %q", parts)
	}

	parts = SplitMessage("aaaaaa<b>x</b>", 8)
	if len(parts) != 2 || parts[0] != "aaaaaa" || parts[1] != "<b>x</b>" {
		t.Fatalf("тег не должен разрезаться: %q", parts)
	}
}

func TestSplitMessageEscapedStory(t *testing.T) {
	escaped := html.EscapeString(strings.Repeat("&", 5000))

	parts := SplitMessage(escaped, 0)
	if len(parts) < 2 {
		t.Fatalf("ожидали несколько частей, получили %d", len(parts))
	}
	for i, part := range parts {
		if len([]rune(part)) > messageLimit {
			t.Fatalf("часть %d превышает предел", i)
		}
		if strings.ReplaceAll(part, "&amp;", "") != "" {
			t.Fatalf("часть %d содержит разрезанную сущность", i)
		}
	}
}
