// internal/relay/events.go
package relay

import (
	"encoding/json"
	"fmt"
)

// Realtime protocol event types the relay inspects. Everything else passes
// through untouched.
const (
	eventSessionUpdate         = "session.update"
	eventSessionCreated        = "session.created"
	eventSessionUpdated        = "session.updated"
	eventItemCreated           = "conversation.item.created"
	eventItemCreate            = "conversation.item.create"
	eventOutputItemAdded       = "response.output_item.added"
	eventOutputItemDone        = "response.output_item.done"
	eventFunctionCallArgsDelta = "response.function_call_arguments.delta"
	eventFunctionCallArgsDone  = "response.function_call_arguments.done"
	eventResponseCreate        = "response.create"
	eventResponseDone          = "response.done"

	itemTypeFunctionCall       = "function_call"
	itemTypeFunctionCallOutput = "function_call_output"
)

// toolCall is one intercepted function-call item queued for dispatch.
type toolCall struct {
	Name      string
	CallID    string
	Arguments json.RawMessage
}

func parseEvent(data []byte) (map[string]interface{}, string, error) {
	var ev map[string]interface{}
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, "", fmt.Errorf("decode event: %w", err)
	}
	t, _ := ev["type"].(string)
	return ev, t, nil
}

func marshalEvent(ev map[string]interface{}) ([]byte, error) {
	return json.Marshal(ev)
}

// overrideSessionUpdate replaces the client's requested session parameters
// with the server-side instructions and tool contracts. Clients never get to
// choose the persona or the tool set.
func overrideSessionUpdate(ev map[string]interface{}, instructions string, toolDefs []map[string]interface{}) {
	session, ok := ev["session"].(map[string]interface{})
	if !ok {
		session = map[string]interface{}{}
		ev["session"] = session
	}
	session["instructions"] = instructions
	session["tools"] = toolDefs
	if len(toolDefs) > 0 {
		session["tool_choice"] = "auto"
	} else {
		session["tool_choice"] = "none"
	}
}

// scrubSessionEvent blanks the server's echo of instructions and tools so
// the client never sees internal prompt or tool schemas.
func scrubSessionEvent(ev map[string]interface{}) {
	session, ok := ev["session"].(map[string]interface{})
	if !ok {
		return
	}
	session["instructions"] = ""
	session["tools"] = []interface{}{}
	session["tool_choice"] = "none"
}

func eventItem(ev map[string]interface{}) map[string]interface{} {
	item, _ := ev["item"].(map[string]interface{})
	return item
}

func itemType(item map[string]interface{}) string {
	t, _ := item["type"].(string)
	return t
}

// extractToolCall pulls the completed function-call details out of a
// response.output_item.done event.
func extractToolCall(ev map[string]interface{}) (*toolCall, bool) {
	item := eventItem(ev)
	if item == nil || itemType(item) != itemTypeFunctionCall {
		return nil, false
	}
	name, _ := item["name"].(string)
	callID, _ := item["call_id"].(string)
	arguments, _ := item["arguments"].(string)
	if arguments == "" {
		arguments = "{}"
	}
	return &toolCall{
		Name:      name,
		CallID:    callID,
		Arguments: json.RawMessage(arguments),
	}, true
}

// stripFunctionCallOutput removes function-call items from a response.done
// event before it reaches the client.
func stripFunctionCallOutput(ev map[string]interface{}) {
	response, ok := ev["response"].(map[string]interface{})
	if !ok {
		return
	}
	output, ok := response["output"].([]interface{})
	if !ok {
		return
	}
	kept := make([]interface{}, 0, len(output))
	for _, entry := range output {
		item, ok := entry.(map[string]interface{})
		if ok && itemType(item) == itemTypeFunctionCall {
			continue
		}
		kept = append(kept, entry)
	}
	response["output"] = kept
}

// toolOutputEvent builds the conversation item that injects a tool result
// back into the upstream conversation.
func toolOutputEvent(callID, output string) map[string]interface{} {
	return map[string]interface{}{
		"type": eventItemCreate,
		"item": map[string]interface{}{
			"type":    itemTypeFunctionCallOutput,
			"call_id": callID,
			"output":  output,
		},
	}
}

func responseCreateEvent() map[string]interface{} {
	return map[string]interface{}{"type": eventResponseCreate}
}
