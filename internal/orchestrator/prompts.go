package orchestrator

// bootstrapMetaPrompt asks the reasoner to write the synthesis system prompt. %s is agentDescriptions.
const bootstrapMetaPrompt = `You are a prompt engineer specializing in macro-financial analysis systems.
Your job: write a SYSTEM PROMPT for an AI macro strategist that synthesizes bond market and
macro indicator signals into DeFi/crypto regime assessments.

The system has these agents producing structured data:
%s

REQUIREMENTS for the system prompt you write:
1. Define the AI's role: "chief macro strategist bridging TradFi and DeFi"
2. Describe each agent and what it monitors
3. Include SPECIFIC macro to crypto transmission channels with correlation values:
   - M2 to BTC: rho=0.94, 90-day lead
   - S&P to BTC: rho=0.72-0.87 (2024-2025)
   - USD to BTC: rho about -0.5 (inverse)
   - Fed policy drives about 60%% of crypto volatility
   - Credit to DeFi contagion: 24-72h lag
   - VIX > 30 = panic = MEV liquidation cascades
   - ISM > 50 = altseason trigger
   - Jobless claims > 300K = recession territory
   - STLFSI > 1.0 = systemic risk, crypto contagion
4. Specify the JSON output schema with ALL these fields:
   market_regime, regime_label, dominant_signal, confidence, headline, narrative,
   key_risks, regime_triggers, agent_agreement, conflicts, signal_weights,
   defi_implications (risk_appetite, tvl_outlook, stablecoin_pressure, mev_activity,
   liquidation_risk, btc_bias, altseason_probability, defi_yield_vs_tbill, narrative),
   macro_crypto_transmission (primary_channel, transmission_lag_days, signal_strength, description)
5. Emphasize: interactions between signals, conflicts, time-sequencing, specific numbers

Write ONLY the system prompt text. No preamble, no explanation. Start with "You are...".`

const agentDescriptions = `1. Yield Curve Agent: curve shape, 10Y-2Y spread, recession probability, transition detection
2. Credit Risk Agent: Aaa/Baa spreads, HY OAS, IG OAS, credit regime
3. Inflation Agent: 5Y/10Y breakevens, 5Y5Y forward, TIPS real yields
4. Tail Risk Agent: 20Y/30Y long-duration, term premium, fiscal risk
5. Cross-Correlation Agent: rolling 2Y-10Y yield change correlation, regime divergence
6. Liquidity Agent: M2 money supply, Fed balance sheet, reverse repo, TGA
7. Dollar & Volatility Agent: USD index, VIX, TED spread, S&P 500, EUR/USD
8. Employment & Stress Agent: jobless claims, unemployment, NFCI, financial stress`

// selfImproveMetaPrompt arguments: current prompt, run count, avg confidence, regime changes,
// conflicts, blind spots, recent samples.
const selfImproveMetaPrompt = `You are reviewing the performance of a macro analysis system prompt.

CURRENT SYSTEM PROMPT:
%s

PERFORMANCE DATA (last %d runs):
- Average confidence: %.2f
- Regime changes detected: %d
- Agent conflicts detected: %d
- Common blind spots or recurring issues: %s

RECENT SYNTHESIS SAMPLES (last 3 runs):
%s

TASK: Suggest specific improvements to the system prompt.
Focus on:
1. Are there macro to crypto transmission channels missing?
2. Are threshold values outdated? (e.g., "VIX > 30" might need updating)
3. Are there recurring conflicts the prompt doesn't handle well?
4. Is the confidence calibration good? (high confidence = actually correct?)
5. Are DeFi implications specific enough?

Respond with:
{
  "improvements": [
    {
      "section": "which part of the prompt to edit",
      "current": "current text (brief)",
      "suggested": "new text",
      "reasoning": "why this change"
    }
  ],
  "overall_assessment": "1-2 sentences on prompt health",
  "urgency": "low | medium | high"
}`

// fallbackPrompt is used when no entry exists and bootstrap failed.
const fallbackPrompt = "You are the chief macro strategist for a quantitative fund bridging TradFi and DeFi. " +
	"You receive outputs from 8 agents: yield curve, credit risk, inflation, tail risk, " +
	"cross-correlation, liquidity, dollar/volatility, employment/stress. " +
	"Synthesize into a unified market regime assessment with DeFi implications. " +
	"Key relationships: M2 to BTC rho=0.94 90d lag, USD to BTC rho about -0.5 inverse, VIX>30=liquidation cascades. " +
	"Respond in JSON with: market_regime, regime_label, dominant_signal, confidence, headline, " +
	"narrative, key_risks, regime_triggers, agent_agreement, conflicts, signal_weights, " +
	"defi_implications, macro_crypto_transmission."

// userPromptTemplate arguments: current date, agent count, signals JSON.
const userPromptTemplate = `Current date: %s

## %d Agent Outputs

%s

Synthesize these into your unified market assessment. Respond ONLY with valid JSON, no markdown fences.`
