package gateway

import "github.com/cloudwego/eino/schema"

// Catalog describes the gateway's operations as tool schemas. Agents fetch
// it to learn the argument shapes instead of hard-coding them; an LLM-driven
// policy can hand the schemas straight to a tool-calling model.
func Catalog() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name: OpFetchCustomer,
			Desc: "Fetch one customer record by id.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"customer_id": {Type: schema.Integer, Desc: "Customer id", Required: true},
			}),
		},
		{
			Name: OpListCustomers,
			Desc: "List customers, newest first, optionally filtered by status.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"status": {Type: schema.String, Desc: "active, disabled, or any", Required: false},
				"limit":  {Type: schema.Integer, Desc: "Maximum rows to return", Required: false},
			}),
		},
		{
			Name: OpUpdateCustomer,
			Desc: "Update a customer's contact fields or status.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"customer_id": {Type: schema.Integer, Desc: "Customer id", Required: true},
				"name":        {Type: schema.String, Desc: "New name", Required: false},
				"email":       {Type: schema.String, Desc: "New email", Required: false},
				"phone":       {Type: schema.String, Desc: "New phone", Required: false},
				"status":      {Type: schema.String, Desc: "active or disabled", Required: false},
			}),
		},
		{
			Name: OpCreateTicket,
			Desc: "Create a support ticket for an existing customer.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"customer_id": {Type: schema.Integer, Desc: "Customer id", Required: true},
				"issue":       {Type: schema.String, Desc: "Issue description", Required: true},
				"priority":    {Type: schema.String, Desc: "low, medium, or high", Required: false},
			}),
		},
		{
			Name: OpFetchTicketHistory,
			Desc: "Fetch a customer's tickets, newest first.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"customer_id": {Type: schema.Integer, Desc: "Customer id", Required: true},
			}),
		},
	}
}
