package telegram

import "strings"

// messageLimit — предел длины сообщения Telegram в символах.
const messageLimit = 4096

// SplitMessage режет текст на части не длиннее limit символов, по возможности по переводу строки.
// Разрез без перевода строки не попадает внутрь HTML-сущности или тега.
// Нулевой или отрицательный limit означает предел Telegram.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || limit > messageLimit {
		limit = messageLimit
	}
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var parts []string
	for len(runes) > 0 {
		if len(runes) <= limit {
			parts = appendChunk(parts, runes)
			break
		}
		cut := lastNewline(runes[:limit])
		if cut <= 0 {
			cut = markupSafeCut(runes, limit)
		}
		parts = appendChunk(parts, runes[:cut])
		runes = trimLeadingNewlines(runes[cut:])
	}
	return parts
}

func appendChunk(parts []string, chunk []rune) []string {
	if s := strings.Trim(string(chunk), "\n"); s != "" {
		return append(parts, s)
	}
	return parts
}

func lastNewline(runes []rune) int {
	for i := len(runes); i > 0; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	return -1
}

// markupSafeCut переносит разрез на начало сущности (&amp;) или тега, если он внутри них.
// Экранированный текст не содержит голых & и <, поэтому ближайший слева & или < без ; или > открыт.
func markupSafeCut(runes []rune, cut int) int {
	for i := cut - 1; i > 0; i-- {
		switch runes[i] {
		case ';', '>':
			return cut
		case '&', '<':
			return i
		}
	}
	return cut
}

func trimLeadingNewlines(runes []rune) []rune {
	for len(runes) > 0 && runes[0] == '\n' {
		runes = runes[1:]
	}
	return runes
}
