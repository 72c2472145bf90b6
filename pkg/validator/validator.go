package validator

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxContentLength = 4000
	MaxAttachments   = 10
	maxEmojiRunes    = 16
)

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

var attachmentRegex = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)
var shortcodeRegex = regexp.MustCompile(`^:[a-z0-9_+-]{1,32}:$`)

var contentTypes = map[string]bool{
	"text":   true,
	"voice":  true,
	"image":  true,
	"file":   true,
	"system": true,
}

func ValidateMessage(content, contentType string, attachments []string) ValidationErrors {
	errs := make(ValidationErrors)

	// Content
	trimmed := strings.TrimSpace(content)
	if trimmed == "" && len(attachments) == 0 {
		errs.Add("content", "Message content is required")
	} else if utf8.RuneCountInString(content) > MaxContentLength {
		errs.Add("content", fmt.Sprintf("Message content must be at most %d characters", MaxContentLength))
	}

	// Type
	if contentType != "" && !contentTypes[contentType] {
		errs.Add("content_type", "Content type must be text, voice, image, file, or system")
	}

	// Attachments
	if len(attachments) > MaxAttachments {
		errs.Add("attachments", fmt.Sprintf("At most %d attachments are allowed", MaxAttachments))
	} else {
		for _, a := range attachments {
			if !attachmentRegex.MatchString(a) {
				errs.Add("attachments", "Invalid attachment ID")
				break
			}
		}
	}

	return errs
}

func ValidateEdit(content string) ValidationErrors {
	errs := make(ValidationErrors)

	if strings.TrimSpace(content) == "" {
		errs.Add("content", "Message content is required")
	} else if utf8.RuneCountInString(content) > MaxContentLength {
		errs.Add("content", fmt.Sprintf("Message content must be at most %d characters", MaxContentLength))
	}

	return errs
}

// ValidateEmoji accepts a :shortcode: or a short run of non-ASCII symbols.
func ValidateEmoji(emoji string) ValidationErrors {
	errs := make(ValidationErrors)

	switch {
	case emoji == "":
		errs.Add("emoji", "Emoji is required")
	case shortcodeRegex.MatchString(emoji):
	case !utf8.ValidString(emoji) || utf8.RuneCountInString(emoji) > maxEmojiRunes:
		errs.Add("emoji", "Invalid emoji")
	default:
		for _, r := range emoji {
			if r < utf8.RuneSelf || unicode.IsSpace(r) || unicode.IsControl(r) || unicode.IsLetter(r) {
				errs.Add("emoji", "Invalid emoji")
				break
			}
		}
	}

	return errs
}
