package main

import "fmt"

const quarterPrompt = `Customer: %s
Issues this quarter: %s

Summarize the customer's issues this quarter in a concise paragraph. Use case numbers as references and the priority of each case found in the information to provide a good summary.`

const weekPrompt = `Customer: %s
Issues this week: %s

Summarize the customer's issues this week in a concise paragraph. Use case numbers as references and the priority of each case found in the information to provide a good summary.`

const useCasesPrompt = `Customer: %s
Quarter Summary: %s

Describe the customer's use cases for %s.`

const componentsPrompt = `Customer: %s
Quarter Summary: %s

List the %s components the customer is using.`

const salesPrompt = `Customer: %s
Quarter Summary: %s

Suggest potential sales opportunities based on %s technologies.`

// casePrompts renders the per-customer prompts for one product family.
type casePrompts struct {
	product string
}

func (p casePrompts) Quarter(customer, issues string) string {
	return fmt.Sprintf(quarterPrompt, customer, issues)
}

func (p casePrompts) Week(customer, issues string) string {
	return fmt.Sprintf(weekPrompt, customer, issues)
}

func (p casePrompts) UseCases(customer, quarterSummary string) string {
	return fmt.Sprintf(useCasesPrompt, customer, quarterSummary, p.product)
}

func (p casePrompts) Components(customer, quarterSummary string) string {
	return fmt.Sprintf(componentsPrompt, customer, quarterSummary, p.product)
}

func (p casePrompts) SalesOpportunities(customer, quarterSummary string) string {
	return fmt.Sprintf(salesPrompt, customer, quarterSummary, p.product)
}
