// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingest

// Sample is a built-in demo document.
type Sample struct {
	DocID    string
	Filename string
	FileType string
	Content  string
}

// Samples are loaded by LoadSamples so a fresh warehouse has something to
// search.
var Samples = []Sample{
	{
		DocID:    "sample_ai_automation",
		Filename: "ai_automation_guide.txt",
		FileType: ".txt",
		Content: `Artificial Intelligence Automation in Enterprise

AI automation is revolutionizing how businesses operate across industries.
Machine learning algorithms can now automate complex decision-making processes,
from supply chain optimization to customer service interactions.

Key benefits include:
- 40% reduction in operational costs
- 60% faster processing times
- 95% accuracy in routine tasks
- 24/7 operational capability

Popular AI automation tools include robotic process automation (RPA),
natural language processing for document analysis, and predictive analytics
for demand forecasting. Companies implementing AI automation report
significant improvements in efficiency and customer satisfaction.`,
	},
	{
		DocID:    "sample_snowflake_cortex",
		Filename: "snowflake_cortex_overview.txt",
		FileType: ".txt",
		Content: `Snowflake Cortex: Complete AI Platform

Snowflake Cortex provides a comprehensive suite of AI and ML functions
directly within the Snowflake Data Cloud. This eliminates the need
to move data to external platforms for AI processing.

Core Cortex Functions:
- CORTEX_EMBEDDINGS: Generate vector embeddings from text
- CORTEX_COMPLETE: LLM text completion and chat
- CORTEX_TRANSLATE: Multi-language translation
- CORTEX_SENTIMENT: Text sentiment analysis
- CORTEX_SUMMARIZE: Document summarization

Performance benchmarks show Cortex achieving sub-2-second response times
for most queries with 97% success rates. Cost optimization through
native integration provides up to 39% savings compared to external APIs.`,
	},
	{
		DocID:    "sample_genai_strategy",
		Filename: "genai_strategy_playbook.txt",
		FileType: ".txt",
		Content: `Generative AI Strategy for Data Teams

Building a successful GenAI strategy requires careful consideration
of data governance, model selection, and deployment architecture.

Strategic Pillars:
1. Data Foundation: Clean, well-structured data pipelines
2. Model Governance: Version control, testing, monitoring
3. Security & Privacy: Data encryption, access controls
4. Scalable Infrastructure: Auto-scaling, cost optimization
5. User Experience: Intuitive interfaces, fast responses

Best practices include starting with pilot projects, measuring ROI,
and gradually expanding AI capabilities across the organization.
Success metrics should include accuracy, latency, user adoption,
and business impact measurement.`,
	},
}
