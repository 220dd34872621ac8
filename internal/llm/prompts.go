package llm

import "fmt"

// System messages for each pass. Content fidelity comes first in every pass:
// the model must never swap user-requested material for generic placeholders.

const refineSystemMessage = "You are a precision-first storyboard planner for Manim. Preserve user intent " +
	"exactly, including topic, sequence, entities, numbers, formulas, and named " +
	"terms. Do not generalize or replace specific content with generic placeholders."

const generateSystemMessage = "You are an elite Manim developer. Your first priority is fidelity to the user " +
	"request and storyboard details. Generate accurate, runnable code with clear " +
	"layout, while keeping all requested domain-specific content."

const fixSystemMessage = "You are an expert Manim debugger who fixes code while preserving content fidelity, " +
	"visual clarity, and execution correctness. Output only valid Python code."

func refinePrompt(userPrompt string) string {
	return fmt.Sprintf(`You are a professional animation planner for Manim Community Edition.

USER REQUEST: %q

Create a request-specific storyboard that is faithful to the user request.

FAITHFULNESS RULES:
1. Keep all explicit user constraints and details (topic, terms, values, equations, sequence, audience level).
2. Do not generalize to a different topic or abstract template.
3. If the user mentions concrete wording for labels, preserve it exactly.
4. Keep steps executable in Manim using relative placement (top/center/bottom/left/right).
5. Keep the scene readable (max 5 visible elements at once), but do not remove required content.

ANIMATION QUALITY RULES:
- Use clear sequencing with transitions.
- Prefer short labels and concise text.
- Avoid overlap using relative placement.
- Fade out old elements before introducing conflicting new elements.
- If the request contains state changes, list them as an explicit ordered chain (A -> B -> C).
- Keep object continuity clear: mention which object persists and which are temporary targets.

OUTPUT FORMAT:
REQUIREMENTS PRESERVED:
- [List concrete user requirements you preserved]

STORYBOARD:
STEP 1: [Specific element(s)] at [relative position]
STEP 2: [Specific animation and transformation]
STEP 3: [Specific supporting element(s)]
STEP 4: [Transition/clear]
...
FINAL: [What remains on screen]

Output ONLY the storyboard. No code. No explanations.
`, userPrompt)
}

func generatePrompt(originalPrompt, storyboard string) string {
	return fmt.Sprintf(`You are a Manim Community Edition developer. Implement the request exactly and clearly.

ORIGINAL USER REQUEST:
%s

STORYBOARD:
%s

REQUIREMENTS:
1. Output ONLY valid Python code (no markdown, no explanations)
2. Code MUST start with: from manim import *
3. Define exactly ONE Scene class
4. Must execute without errors
5. Preserve all explicit user-request details and terminology

FIDELITY RULES:
- Do not replace specific requested content with generic placeholders.
- Keep requested numbers, formulas, entities, and sequence.
- Keep important labels/text terms aligned with user wording.
- If storyboard includes "REQUIREMENTS PRESERVED", implement each one.

LAYOUT RULES:
- Avoid overlap using relative placement (top, center, bottom, left, right).
- Keep 3-5 elements visible at once unless user request requires otherwise.
- Clear old elements before introducing conflicting new ones.

POSITIONING GUIDANCE (no hard coordinates):
- Titles near top using to_edge(UP)
- Main content centered with move_to(ORIGIN)
- Labels placed next_to(...) with a reasonable buff
- Groups arranged with arrange(...) and adequate spacing

ANIMATION GUIDANCE:
- Use FadeIn/Write/Create for entrances
- Use FadeOut before switching scenes
- Use Transform/ReplacementTransform for morphing
- Add short waits for clarity (0.5-1s)

STATE AND TRANSFORM RELIABILITY RULES:
- For multi-step morphs (A -> B -> C), always transform the currently visible on-scene object.
- Do not call Transform on a target object that was never added to the scene.
- If using ReplacementTransform(old, new), rebind references for later steps (example: current = new).
- Prefer Transform(current, NewShape()) for chained geometry morphs to avoid stale references.
- Ensure every animated object is defined before use and introduced via Create/FadeIn/Write or add().
- Before finalizing code, self-check that each Transform/ReplacementTransform source object is on scene.

MANIM RULES:
- Use Text() for normal text
- Use MathTex() for formulas/equations
- Avoid deprecated APIs (CONFIG, TextMobject, TexMobject)
- DO NOT use external assets (SVGMobject, ImageMobject, file loads)
- Use built-in Manim primitives and groups for visuals

Generate the complete Manim script now.
`, originalPrompt, storyboard)
}

func fixPrompt(originalPrompt, storyboard, previousCode, errDetail string) string {
	return fmt.Sprintf(`You are an expert Manim debugger. Fix this broken script while keeping it clear and readable.

ORIGINAL USER REQUEST:
%s

ANIMATION REQUIREMENT:
%s

BROKEN CODE:
%s

ERROR MESSAGE:
%s

FIX REQUIREMENTS:
1. Output ONLY corrected Python code (no markdown, no explanations)
2. Keep the same Scene class name
3. Preserve the original requested content and terminology
4. Ensure proper positioning (no overlaps)
5. Change only what is necessary to fix errors/layout issues
6. Ensure transformation chains are state-correct and executable

COMMON FIXES:
- CONFIG -> self.camera.background_color = "#0f0f1a"
- TextMobject -> Text("text", font_size=36)
- TexMobject -> MathTex(r"formula")
- Undefined colors -> Use hex: "#00d4ff", "#8b5cf6", "#ff6b6b"
- Missing import -> Ensure 'from manim import *'
- Undefined object -> Define before use
- Wrong syntax -> Use Manim Community v0.18+ syntax
- Mobject not in scene during Transform -> transform the currently displayed object, not the prior target placeholder
- Chained morph broken -> use one persistent variable (for example: current) or rebind after ReplacementTransform

VISUAL QUALITY TO PRESERVE:
- Clear spacing with reasonable buff values
- Consistent styling and readable text
- Smooth animations and short waits for clarity
- Avoid overcrowding the scene

Return the fully corrected Manim script.
`, originalPrompt, storyboard, previousCode, errDetail)
}
