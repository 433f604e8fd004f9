package validation

// nodeConfigSchemas maps a normalized node type to the JSON Schema its
// config must satisfy. Types without an entry accept any config.
var nodeConfigSchemas = map[string]string{
	"loop": forLoopSchema,
	"for":  forLoopSchema,
	"foreach": `{
  "type": "object",
  "required": ["sourceArray"],
  "properties": {
    "sourceArray": { "type": "string", "minLength": 1 },
    "itemVariable": { "type": "string", "pattern": "^[A-Za-z_][A-Za-z0-9_]*$" },
    "maxIterations": { "type": "integer", "minimum": 1 }
  }
}`,
	"while":   conditionLoopSchema,
	"dowhile": conditionLoopSchema,
	"parallel": `{
  "type": "object",
  "properties": {
    "aggregation": { "type": "string" },
    "maxConcurrency": { "type": "integer", "minimum": 1 }
  }
}`,
	"llm": `{
  "type": "object",
  "properties": {
    "provider": { "type": "string" },
    "model": { "type": "string", "minLength": 1 },
    "prompt": { "type": "string" },
    "systemPrompt": { "type": "string" },
    "temperature": { "type": "number", "minimum": 0, "maximum": 2 },
    "maxTokens": { "type": "integer", "minimum": 1 },
    "timeout": { "type": ["string", "number"] }
  }
}`,
	"http": httpSchema,
	"httprequest": httpSchema,
	"conditional": `{
  "type": "object",
  "properties": {
    "expression": { "type": "string", "minLength": 1 },
    "condition": { "type": "string", "minLength": 1 }
  }
}`,
	"router": routerSchema,
	"switch": routerSchema,
	"schedule": `{
  "type": "object",
  "required": ["cron"],
  "properties": {
    "cron": { "type": "string", "minLength": 1 },
    "timezone": { "type": "string" }
  }
}`,
	"transform": `{
  "type": "object",
  "properties": {
    "jq": { "type": "string", "minLength": 1 },
    "expression": { "type": "string" }
  }
}`,
	"humanapproval": `{
  "type": "object",
  "properties": {
    "approvers": { "type": "array", "items": { "type": "string" } },
    "timeout": { "type": ["string", "number"] }
  }
}`,
}

const forLoopSchema = `{
  "type": "object",
  "properties": {
    "count": { "type": "integer", "minimum": 0 },
    "maxIterations": { "type": "integer", "minimum": 1 }
  }
}`

const conditionLoopSchema = `{
  "type": "object",
  "required": ["condition"],
  "properties": {
    "condition": { "type": "string", "minLength": 1 },
    "maxIterations": { "type": "integer", "minimum": 1 }
  }
}`

const httpSchema = `{
  "type": "object",
  "required": ["url"],
  "properties": {
    "url": { "type": "string", "minLength": 1 },
    "method": { "type": "string", "enum": ["GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"] },
    "headers": { "type": "object", "additionalProperties": { "type": "string" } },
    "timeout": { "type": ["string", "number"] }
  }
}`

const routerSchema = `{
  "type": "object",
  "properties": {
    "routes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id"],
        "properties": {
          "id": { "type": "string", "minLength": 1 },
          "expression": { "type": "string" }
        }
      }
    }
  }
}`
