package verticals

// bootstrapMetaPrompt arguments: vertical name, series IDs JSON, description, customers, base template.
const bootstrapMetaPrompt = `Write a SYSTEM PROMPT for an AI analyst specializing in %s.

FRED Series available: %s
Focus: %s
Target customers: %s

Base template (expand and improve this):
%s

Requirements:
1. Define the analyst role clearly
2. Explain what each metric means and its significance
3. Include specific thresholds and triggers
4. Define the JSON response schema:
   market_regime, regime_label, dominant_signal, confidence (0-1),
   headline, narrative (4-5 paragraphs), key_risks (list), regime_triggers (list)
5. Be decisive and quantitative

Write ONLY the system prompt. Start with 'You are...'.`

// userPromptTemplate arguments: current date, vertical name, metrics JSON.
const userPromptTemplate = `Current date: %s

## %s: Latest Metrics

%s

Analyze these metrics. Respond ONLY with valid JSON, no markdown fences.`
