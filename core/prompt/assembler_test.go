package prompt_test

import (
	"strings"

	"github.com/coachly/coachd/core/prompt"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Assemble", func() {
	It("returns only the base prompt when nothing else is set", func() {
		out, err := prompt.Assemble(prompt.Input{BasePrompt: "You are a running coach."})
		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(Equal("You are a running coach."))
	})

	It("emits a section only when its source data is non-empty", func() {
		out, err := prompt.Assemble(prompt.Input{
			BasePrompt:  "Base.",
			UserContext: "Training for a 10k.",
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(ContainSubstring("## About the user"))
		Expect(out).To(ContainSubstring("Training for a 10k."))
		Expect(out).ToNot(ContainSubstring("## Reference material"))
		Expect(out).ToNot(ContainSubstring("## Relevant knowledge"))
		Expect(out).ToNot(ContainSubstring("## What you remember"))
		Expect(out).ToNot(ContainSubstring("## Example exchanges"))
	})

	It("keeps the fixed section ordering", func() {
		out, err := prompt.Assemble(prompt.Input{
			BasePrompt:  "Base.",
			InlineDocs:  []prompt.Document{{Title: "Plan", Content: "doc body"}},
			Chunks:      []prompt.Chunk{{DocumentTitle: "Plan", Content: "chunk body", Similarity: 0.9}},
			UserContext: "ctx",
			Insights:    "- Wants to run a marathon",
			Examples:    []prompt.ExampleConversation{{UserMessage: "hi", AssistantMessage: "hello"}},
		})
		Expect(err).ToNot(HaveOccurred())

		base := strings.Index(out, "Base.")
		docs := strings.Index(out, "## Reference material")
		chunks := strings.Index(out, "## Relevant knowledge")
		user := strings.Index(out, "## About the user")
		insights := strings.Index(out, "## What you remember")
		examples := strings.Index(out, "## Example exchanges")

		Expect(base).To(BeNumerically("<", docs))
		Expect(docs).To(BeNumerically("<", chunks))
		Expect(chunks).To(BeNumerically("<", user))
		Expect(user).To(BeNumerically("<", insights))
		Expect(insights).To(BeNumerically("<", examples))
	})

	It("truncates each inline document to the limit", func() {
		long := strings.Repeat("z", prompt.InlineDocLimit+500)
		out, err := prompt.Assemble(prompt.Input{
			BasePrompt: "Base.",
			InlineDocs: []prompt.Document{{Title: "Big", Content: long}},
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(strings.Count(out, "z")).To(Equal(prompt.InlineDocLimit))
	})

	It("labels retrieved chunks with document title and heading", func() {
		out, err := prompt.Assemble(prompt.Input{
			BasePrompt: "Base.",
			Chunks: []prompt.Chunk{
				{DocumentTitle: "Nutrition", Heading: "Hydration", Content: "drink water"},
				{DocumentTitle: "Nutrition", Content: "eat greens"},
			},
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(ContainSubstring("[Nutrition / Hydration] drink water"))
		Expect(out).To(ContainSubstring("[Nutrition] eat greens"))
	})
})
