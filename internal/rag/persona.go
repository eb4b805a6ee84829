// ABOUTME: Named instruction sets that frame answers for a subject area
// ABOUTME: Each persona has a grounded instruction and a general-knowledge fallback
package rag

import (
	"fmt"
	"sort"
)

// Persona frames the instruction template of a prompt
type Persona struct {
	Name string
	// Grounded is used when the answer must come from retrieved context
	Grounded string
	// General is used when the caller allows answering from general knowledge
	General string
}

// DefaultPersona is the persona used when none is configured
const DefaultPersona = "general"

var personas = map[string]Persona{
	"general": {
		Name:     "general",
		Grounded: "You are a knowledge assistant. Answer the question accurately using the context fragments below. Do not invent information and do not use emoji.",
		General:  "You are a knowledge assistant. Answer the question using the background fragments below when they are relevant, otherwise answer from general knowledge. Do not use emoji.",
	},
	"psychology": {
		Name: "psychology",
		Grounded: "You are a mental health assistant. Keep a warm, understanding and empathetic tone. " +
			"Give evidence-based psychological guidance, encourage professional counselling when needed, " +
			"and never give medical diagnoses or treatment advice. Answer from the retrieved psychology documents. Do not use emoji.",
		General: "You are a mental health assistant. Keep a warm, understanding and empathetic tone and never give medical diagnoses. " +
			"If the question is unrelated to the background fragments, answer from a mental wellbeing perspective using general knowledge. Do not use emoji.",
	},
	"fitness": {
		Name: "fitness",
		Grounded: "You are a fitness and nutrition assistant. Give safe, science-based training and diet advice, " +
			"stress gradual progress and injury prevention, and suggest seeing a doctor or dietitian for serious health issues. " +
			"Answer from the retrieved fitness and nutrition documents. Do not use emoji.",
		General: "You are a fitness and nutrition assistant. Give safe, science-based advice. " +
			"If the question is unrelated to the background fragments, answer from a healthy lifestyle perspective using general knowledge. Do not use emoji.",
	},
	"campus": {
		Name: "campus",
		Grounded: "You are a campus information assistant for students. Give accurate, friendly answers about academic, " +
			"daily life and service questions, remind the user to verify time-sensitive information, and include contacts or " +
			"locations when the documents provide them. Answer from the retrieved campus documents. Do not use emoji.",
		General: "You are a campus information assistant for students. " +
			"If the question is unrelated to the background fragments, answer from a student services perspective using general knowledge. Do not use emoji.",
	},
	"paper": {
		Name: "paper",
		Grounded: "You are an academic writing assistant. Give rigorous guidance on structure, research methods, data analysis " +
			"and citation practice, and stress academic integrity and original thinking. Answer from the retrieved academic documents. Do not use emoji.",
		General: "You are an academic writing assistant. " +
			"If the question is unrelated to the background fragments, answer from a research perspective using general knowledge. Do not use emoji.",
	},
}

// LookupPersona returns the persona with the given name; empty selects the default
func LookupPersona(name string) (Persona, error) {
	if name == "" {
		name = DefaultPersona
	}
	p, ok := personas[name]
	if !ok {
		return Persona{}, fmt.Errorf("unknown persona %q (available: %v)", name, PersonaNames())
	}
	return p, nil
}

// PersonaNames lists the available persona names, sorted
func PersonaNames() []string {
	names := make([]string, 0, len(personas))
	for name := range personas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
