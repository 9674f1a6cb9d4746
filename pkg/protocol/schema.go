package protocol

// PhraseSchema is the JSON Schema a backend reply must satisfy
const PhraseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "oneOf": [
      {
        "type": "object",
        "required": ["type", "voice", "role", "text"],
        "properties": {
          "type": { "const": "text" },
          "voice": { "type": "string", "minLength": 1 },
          "role": { "type": "string" },
          "text": { "type": "string" }
        }
      },
      {
        "type": "object",
        "required": ["type", "role", "skill", "base", "result"],
        "properties": {
          "type": { "const": "dice" },
          "role": { "type": "string" },
          "skill": { "type": "string" },
          "base": { "type": "integer" },
          "result": { "type": "integer", "minimum": 1, "maximum": 20 }
        }
      },
      {
        "type": "object",
        "required": ["type", "action"],
        "properties": {
          "type": { "const": "action" },
          "action": { "type": "string", "enum": ["START_NEW_GAME", "ROLL_DICE"] }
        }
      }
    ]
  }
}`
