package insight

const themePrompt = `Analyze these YouTube videos from the "%s" digest and write a brief paragraph (2-3 sentences) identifying overarching themes, trends, or notable patterns across the channels in this period.

Videos:
%s

Write a concise, insightful paragraph about the themes. Be specific about topics discussed. Plain prose or light Markdown only.`

const videoPrompt = `Analyze this YouTube video and extract information.

Title: %s
Channel: %s
Description: %s
Transcript excerpt: %s
Sample comments: %s

Extract:
1. GUESTS: Look for guest names in the title (often after "with" or before "|") and in the description. Return full names.
2. TOPICS: What are the 2-3 main topics discussed? Be specific.
3. SENTIMENT: Based on the comments, is the overall reaction positive, negative, or mixed?
4. CATEGORY: Exactly one of %s.
5. SUMMARY: One sentence on what the video is about.

You MUST respond with ONLY valid JSON in this exact format, no other text:
{"guests": ["Full Name"], "topics": ["specific topic 1", "specific topic 2"], "sentiment": "positive", "category": "Interview", "summary": "One sentence."}

If there are no guests, use an empty array: "guests": []`
