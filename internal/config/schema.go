package config

// configSchema is the structural contract for mcpt.json. Rules the schema
// cannot express (exactly-one-of command/url, grant requirements) live in
// validateServer.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["mcpServers"],
  "properties": {
    "mcpServers": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "command": {"type": "string", "minLength": 1},
          "args": {"type": "array", "items": {"type": "string"}},
          "env": {"type": "object", "additionalProperties": {"type": "string"}},
          "cwd": {"type": "string"},
          "url": {"type": "string", "minLength": 1},
          "headers": {"type": "object", "additionalProperties": {"type": "string"}},
          "timeout": {"type": "string"},
          "oauth": {
            "type": "object",
            "properties": {
              "grantType": {"type": "string", "enum": ["authorization_code", "client_credentials"]},
              "clientId": {"type": "string"},
              "clientSecret": {"type": "string"},
              "scope": {"type": "string"},
              "callbackPort": {"type": "integer", "minimum": 1, "maximum": 65535},
              "callbackPorts": {
                "type": "array",
                "items": {"type": "integer", "minimum": 0, "maximum": 65535}
              }
            },
            "additionalProperties": false
          },
          "allowedTools": {"type": "array", "items": {"type": "string"}},
          "disabledTools": {"type": "array", "items": {"type": "string"}}
        },
        "additionalProperties": false
      }
    }
  }
}`
