package ai

const DiscoverEdgesSystemPrompt = `You are an expert in understanding relationships between records extracted from a personal diary. You only answer with the requested JSON.`

const DiscoverEdgesPrompt = `
# Task Context
You are connecting records that were extracted from one diary entry. Each record has an ID. Some connections were already found by simple name matching.

# Background Data
Original text:
'%s'

Present connections:
%s

Records to connect:
%s

# Detailed Task Description & Rules
- Generate connections between the records based on the original text.
- Only generate connections that are not already present.
- Only use IDs that appear in the list of records. Never invent IDs.
- Only connect records whose relationship is expressed in the text. Do not infer.
- Describe each connection with a short type in plain text (e.g. "participated in", "related to", "caused", "mentioned").

# Output Formatting
Return a JSON object with this structure:
{
  "items": [
    {
      "source_id": "<ID of the source record>",
      "target_id": "<ID of the target record>",
      "type": "<type of connection>"
    }
  ]
}
If there is nothing to add return {"items": []}.
`
