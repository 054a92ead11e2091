// Copyright 2026 © The Concierge Authors
// SPDX-License-Identifier: Apache-2.0

// Package stub ships self-contained demo backends so the concierge can run
// end to end without any external payor systems. The dataset is small and
// deterministic on purpose.
package stub

import "strings"

// Member is one enrolled plan member.
type Member struct {
	MemberID  string `json:"member_id"`
	Name      string `json:"name"`
	DOB       string `json:"dob"`
	Plan      string `json:"plan"`
	Status    string `json:"status"`
	City      string `json:"city"`
	PCPClinic string `json:"pcp_clinic"`
}

// Claim is one adjudicated claim line.
type Claim struct {
	ClaimID   string  `json:"claim_id"`
	MemberID  string  `json:"member_id"`
	Service   string  `json:"service"`
	Provider  string  `json:"provider"`
	Amount    float64 `json:"amount"`
	Status    string  `json:"status"`
	FiledDate string  `json:"filed_date"`
}

// Provider is one in-network care provider.
type Provider struct {
	ProviderID string `json:"provider_id"`
	Name       string `json:"name"`
	Specialty  string `json:"specialty"`
	City       string `json:"city"`
	Accepting  bool   `json:"accepting_new_patients"`
}

// Passage is one retrievable chunk of policy documentation.
type Passage struct {
	ID     string
	Title  string
	Source string
	Text   string
}

// Dataset is the in-memory payor universe the stub backends serve from.
type Dataset struct {
	Members   []Member
	Claims    []Claim
	Providers []Provider
	Passages  []Passage
}

// DefaultDataset returns the demo dataset.
func DefaultDataset() *Dataset {
	return &Dataset{
		Members: []Member{
			{MemberID: "1001", Name: "John Doe", DOB: "1981-03-14", Plan: "Gold PPO", Status: "active", City: "Springfield", PCPClinic: "Maple Street Family Medicine"},
			{MemberID: "1002", Name: "Maria Alvarez", DOB: "1974-11-02", Plan: "Silver HMO", Status: "active", City: "Riverton", PCPClinic: "Riverton Primary Care"},
			{MemberID: "1003", Name: "Wei Chen", DOB: "1990-06-27", Plan: "Bronze HDHP", Status: "lapsed", City: "Springfield", PCPClinic: "Downtown Health Associates"},
		},
		Claims: []Claim{
			{ClaimID: "C-5001", MemberID: "1001", Service: "MRI lower back", Provider: "Springfield Imaging Center", Amount: 1240.00, Status: "paid", FiledDate: "2026-05-12"},
			{ClaimID: "C-5002", MemberID: "1001", Service: "Physical therapy, 6 sessions", Provider: "Motion Works PT", Amount: 660.00, Status: "pending", FiledDate: "2026-07-01"},
			{ClaimID: "C-5003", MemberID: "1002", Service: "Annual wellness visit", Provider: "Riverton Primary Care", Amount: 185.00, Status: "paid", FiledDate: "2026-02-20"},
			{ClaimID: "C-5004", MemberID: "1002", Service: "Dermatology consult", Provider: "Clear Skin Dermatology", Amount: 310.00, Status: "denied", FiledDate: "2026-04-15"},
			{ClaimID: "C-5005", MemberID: "1003", Service: "Urgent care visit", Provider: "Springfield Urgent Care", Amount: 240.00, Status: "paid", FiledDate: "2026-01-08"},
		},
		Providers: []Provider{
			{ProviderID: "P-301", Name: "Dr. Alice Romero", Specialty: "cardiology", City: "Springfield", Accepting: true},
			{ProviderID: "P-302", Name: "Dr. Ben Okafor", Specialty: "dermatology", City: "Riverton", Accepting: false},
			{ProviderID: "P-303", Name: "Dr. Carol Singh", Specialty: "primary care", City: "Springfield", Accepting: true},
			{ProviderID: "P-304", Name: "Dr. David Katz", Specialty: "orthopedics", City: "Springfield", Accepting: true},
			{ProviderID: "P-305", Name: "Dr. Elena Petrov", Specialty: "cardiology", City: "Riverton", Accepting: true},
		},
		Passages: []Passage{
			{
				ID:     "um-imaging",
				Title:  "Utilization Management Policy",
				Source: "policies/um-2026.pdf",
				Text:   "Prior authorization is required for advanced imaging (MRI, CT, PET) with billed amounts over $500. Requests are reviewed within 72 hours.",
			},
			{
				ID:     "appeals",
				Title:  "Claims Appeals Process",
				Source: "policies/appeals-2026.pdf",
				Text:   "A member may appeal a denied claim within 180 days of the determination. First-level appeals are decided within 30 days for pre-service and 60 days for post-service claims.",
			},
			{
				ID:     "oon",
				Title:  "Out-of-Network Coverage",
				Source: "policies/network-2026.pdf",
				Text:   "Out-of-network services are covered at 60% of the allowed amount for PPO plans after the out-of-network deductible. HMO plans cover out-of-network care only in emergencies.",
			},
			{
				ID:     "pt-limits",
				Title:  "Therapy Visit Limits",
				Source: "policies/benefits-2026.pdf",
				Text:   "Physical, occupational, and speech therapy are limited to 30 combined visits per plan year. Additional visits require medical necessity review.",
			},
		},
	}
}

// FindMember returns the member with the given id, or nil.
func (d *Dataset) FindMember(id string) *Member {
	for i := range d.Members {
		if d.Members[i].MemberID == id {
			return &d.Members[i]
		}
	}
	return nil
}

// ClaimsFor returns all claims filed for the given member.
func (d *Dataset) ClaimsFor(memberID string) []Claim {
	var out []Claim
	for _, c := range d.Claims {
		if c.MemberID == memberID {
			out = append(out, c)
		}
	}
	return out
}

// ProvidersBySpecialty returns providers matching the specialty filter.
// An empty filter returns every provider.
func (d *Dataset) ProvidersBySpecialty(filter string) []Provider {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		return d.Providers
	}
	var out []Provider
	for _, p := range d.Providers {
		if strings.Contains(strings.ToLower(p.Specialty), filter) {
			out = append(out, p)
		}
	}
	return out
}
