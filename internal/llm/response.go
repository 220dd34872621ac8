package llm

import "strings"

// StripCodeFences removes a surrounding markdown code fence, if present.
// Models regularly wrap scripts in ```python blocks despite the prompt rules.
func StripCodeFences(code string) string {
	code = strings.TrimSpace(code)
	if strings.HasPrefix(code, "```python") {
		code = code[len("```python"):]
	} else if strings.HasPrefix(code, "```") {
		code = code[len("```"):]
	}
	if strings.HasSuffix(code, "```") {
		code = code[:len(code)-len("```")]
	}
	return strings.TrimSpace(code)
}

// ExtractSceneName returns the first Scene class name defined in the script,
// or "" when none is found.
func ExtractSceneName(code string) string {
	for _, line := range strings.Split(code, "\n") {
		if !strings.Contains(line, "class") || !strings.Contains(line, "Scene") {
			continue
		}
		parts := strings.Fields(line)
		for i, part := range parts {
			if part == "class" && i+1 < len(parts) {
				name := parts[i+1]
				if idx := strings.IndexByte(name, '('); idx >= 0 {
					name = name[:idx]
				}
				return strings.TrimSuffix(strings.TrimSpace(name), ":")
			}
		}
	}
	return ""
}

// sceneFromResponse post-processes a raw model response into a SceneCode.
func sceneFromResponse(raw string) *SceneCode {
	code := StripCodeFences(raw)
	return &SceneCode{
		Code:      code,
		SceneName: ExtractSceneName(code),
	}
}
