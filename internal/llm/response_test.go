package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "python fence",
			input: "```python\nfrom manim import *\n```",
			want:  "from manim import *",
		},
		{
			name:  "bare fence",
			input: "```\nfrom manim import *\n```",
			want:  "from manim import *",
		},
		{
			name:  "no fence",
			input: "from manim import *",
			want:  "from manim import *",
		},
		{
			name:  "leading whitespace",
			input: "\n\n```python\nx = 1\n```\n",
			want:  "x = 1",
		},
		{
			name:  "unterminated fence",
			input: "```python\nx = 1",
			want:  "x = 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFences(tt.input))
		})
	}
}

func TestExtractSceneName(t *testing.T) {
	code := `from manim import *

class PythagorasProof(Scene):
    def construct(self):
        pass
`
	assert.Equal(t, "PythagorasProof", ExtractSceneName(code))
}

func TestExtractSceneNameVariants(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{
			name: "no parentheses spacing",
			code: "class BouncingBall(Scene):",
			want: "BouncingBall",
		},
		{
			name: "moving camera scene",
			code: "class ZoomDemo(MovingCameraScene):",
			want: "ZoomDemo",
		},
		{
			name: "first scene class wins",
			code: "class First(Scene):\n    pass\nclass Second(Scene):\n    pass",
			want: "First",
		},
		{
			name: "no scene class",
			code: "def construct():\n    pass",
			want: "",
		},
		{
			name: "plain class is skipped",
			code: "class Helper:\n    pass\nclass Real(Scene):\n    pass",
			want: "Real",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractSceneName(tt.code))
		})
	}
}

func TestSceneFromResponse(t *testing.T) {
	raw := "```python\nfrom manim import *\n\nclass CircleDemo(Scene):\n    def construct(self):\n        self.play(Create(Circle()))\n```"

	scene := sceneFromResponse(raw)
	assert.Equal(t, "CircleDemo", scene.SceneName)
	assert.False(t, len(scene.Code) == 0)
	assert.NotContains(t, scene.Code, "```")
}
