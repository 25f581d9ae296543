package service

// Prompts sent to the generative models. Wording is tuned against real
// model output; change with care and re-run the pipeline end to end.

// codeSystemPrompt instructs the code model to emit manim scene code that
// stays on screen and avoids overlapping text.
const codeSystemPrompt = `You write manim (Community Edition) Python code that renders a short,
clean animation for the requested topic.

Rules:
- Output exactly one Python code block fenced with triple backticks and the
  python tag. No prose outside the block.
- Define exactly one class inheriting from Scene with a construct method.
- Use font_size=30 for all Text and MathTex objects and add generous spacing
  between math symbols and surrounding text.
- Keep every element inside the visible frame. Prefer ReplacementTransform
  between steps and call self.clear() before and after any visualization so
  nothing ever overlaps. Avoid chaining next_to/move_to placements.
- Keep visualizations small and centered, shown on their own, then cleared.
- Prioritize code that renders over elaborate animations. Keep it short.`

// scenePlanPrompt instructs the scene model to split a request into a small
// ordered list of scene briefs, returned as structured JSON.
const scenePlanPrompt = `Break the following request into scenes for a short educational manim
video. Return between 1 and 5 scenes, each with a title and a brief
description of what to show; do not include any math in the descriptions.
Mention in the description that the screen is cleared before and after any
visualization. Prefer a single simple scene unless the request clearly
needs more, and skip visualizations unless they are asked for.

Request: `

// audioRewritePrompt instructs the narration model to wrap working scene
// code with voiceover directives. The example pins the exact structure the
// voiceover runtime expects.
const audioRewritePrompt = `Rewrite the manim code below so every self.play call runs inside a
voiceover block, following this structure exactly:

from manim import *
from manim_voiceover import VoiceoverScene
from manim_voiceover.services.elevenlabs import ElevenLabsService
import ssl
import numpy as np

ssl._create_default_https_context = ssl._create_unverified_context
config.renderer = "cairo"

class Example(VoiceoverScene):
    def construct(self):
        self.set_speech_service(
            ElevenLabsService(
                voice_name="Adam",
                voice_settings={"stability": 0.1, "similarity_boost": 0.3}
            )
        )
        title = Text("Hello", font_size=30).to_edge(UP)
        with self.voiceover(text="A short line about the topic.") as tracker:
            self.play(Write(title), run_time=tracker.duration)
        with self.voiceover(text="Closing line."):
            self.play(FadeOut(title))

The narration text must describe the topic, equations and headings in short
crisp sentences; never the transitions or the code. The final play call
omits run_time. Return the entire rewritten program as one fenced python
code block and nothing else.

Code:
`
