package catalog

// Default returns the built-in catalog snapshot. It covers the regulatory
// frameworks the engine ships with; deployments with their own counsel-
// reviewed definitions load a YAML catalog instead via LoadFile.
func Default() (*Catalog, error) {
	return FromDefinition(defaultDefinition())
}

func defaultDefinition() *Definition {
	return &Definition{
		Name: "builtin",
		Jurisdictions: []Jurisdiction{
			{Code: JurisdictionUS, Name: "United States", Regulations: []RegulationID{"HIPAA"}},
			{Code: JurisdictionEU, Name: "European Union", Regulations: []RegulationID{"GDPR"}},
			{Code: "DE", Name: "Germany", ParentCode: JurisdictionEU},
			{Code: "FR", Name: "France", ParentCode: JurisdictionEU},
			{Code: "NL", Name: "Netherlands", ParentCode: JurisdictionEU},
			{Code: "IE", Name: "Ireland", ParentCode: JurisdictionEU},
			{Code: JurisdictionGB, Name: "United Kingdom", Regulations: []RegulationID{"UK_GDPR"}},
			{Code: JurisdictionIN, Name: "India", Regulations: []RegulationID{"DPDP"}},
			{Code: JurisdictionBR, Name: "Brazil", Regulations: []RegulationID{"LGPD"}},
			{Code: JurisdictionCA, Name: "Canada", Regulations: []RegulationID{"PIPEDA"}},
		},
		Regulations: []Regulation{
			{
				ID:            "HIPAA",
				Name:          "Health Insurance Portability and Accountability Act",
				Citation:      "45 CFR Parts 160 and 164",
				Jurisdiction:  JurisdictionUS,
				Applicability: `source == "US" || "US" in touched`,
				Reasoning:     "Applies because the data originates from or transits the United States healthcare system.",
				Rules: []Rule{
					{
						ID:             "HIPAA-AUTH",
						Citation:       "45 CFR §164.508",
						Description:    "Disclosure requires patient authorization unless the dataset is de-identified.",
						Severity:       9,
						RequiredFields: []string{"patient.authorization", "dataset.deidentified"},
						Predicate:      `fields["patient.authorization"] == true || fields["dataset.deidentified"] == true`,
					},
					{
						ID:             "HIPAA-MIN-NECESSARY",
						Citation:       "45 CFR §164.502(b)",
						Description:    "A declared transfer purpose is required to satisfy the minimum necessary standard.",
						Severity:       5,
						RequiredFields: []string{"transfer.purpose"},
						Predicate:      `fields["transfer.purpose"] != ""`,
					},
				},
			},
			{
				ID:            "GDPR",
				Name:          "General Data Protection Regulation",
				Citation:      "Regulation (EU) 2016/679",
				Jurisdiction:  JurisdictionEU,
				Applicability: `"EU" in touched`,
				Reasoning:     "Applies because the data subject resides in, or the data traverses, the European Union.",
				Rules: []Rule{
					{
						ID:             "GDPR-LAWFUL-BASIS",
						Citation:       "GDPR Art. 6(1)",
						Description:    "Processing requires a declared lawful basis.",
						Severity:       9,
						RequiredFields: []string{"transfer.legal_basis"},
						Predicate:      `fields["transfer.legal_basis"] != ""`,
					},
					{
						ID:             "GDPR-SAFEGUARDS",
						Citation:       "GDPR Art. 46",
						Description:    "Third-country transfers require appropriate safeguards (SCC, BCR or an adequacy decision).",
						Severity:       8,
						RequiredFields: []string{"transfer.safeguards"},
						Predicate:      `fields["transfer.safeguards"] in ["scc", "bcr", "adequacy"]`,
					},
					{
						ID:             "GDPR-MINIMIZATION",
						Citation:       "GDPR Art. 5(1)(c)",
						Description:    "A declared purpose is required to assess data minimization.",
						Severity:       5,
						RequiredFields: []string{"transfer.purpose"},
						Predicate:      `fields["transfer.purpose"] != ""`,
					},
				},
			},
			{
				ID:            "UK_GDPR",
				Name:          "UK General Data Protection Regulation",
				Citation:      "Data Protection Act 2018",
				Jurisdiction:  JurisdictionGB,
				Applicability: `"GB" in touched`,
				Reasoning:     "Applies because the data traverses or is governed by the United Kingdom.",
				Rules: []Rule{
					{
						ID:             "UKGDPR-LAWFUL-BASIS",
						Citation:       "UK GDPR Art. 6(1); DPA 2018 Part 2",
						Description:    "Processing requires a declared lawful basis.",
						Severity:       9,
						RequiredFields: []string{"transfer.legal_basis"},
						Predicate:      `fields["transfer.legal_basis"] != ""`,
					},
				},
			},
			{
				ID:            "DPDP",
				Name:          "Digital Personal Data Protection Act",
				Citation:      "India DPDP Act 2023",
				Jurisdiction:  JurisdictionIN,
				Applicability: `destination == "IN"`,
				Reasoning:     "Applies because the data is transferred to India, invoking DPDP obligations.",
				Rules: []Rule{
					{
						ID:             "DPDP-CONSENT",
						Citation:       "DPDP Act 2023 §7",
						Description:    "Processing requires the data principal's consent.",
						Severity:       8,
						RequiredFields: []string{"subject.consent"},
						Predicate:      `fields["subject.consent"] == true`,
					},
					{
						ID:             "DPDP-NOTICE",
						Citation:       "DPDP Act 2023 §5",
						Description:    "A notice describing the processing purpose must have been given.",
						Severity:       4,
						RequiredFields: []string{"subject.notice_given"},
						Predicate:      `fields["subject.notice_given"] == true`,
					},
				},
			},
			{
				ID:            "LGPD",
				Name:          "Lei Geral de Proteção de Dados",
				Citation:      "Brazil Law No. 13.709/2018",
				Jurisdiction:  JurisdictionBR,
				Applicability: `"BR" in touched`,
				Reasoning:     "Applies because the data traverses or is destined for Brazil.",
				Rules: []Rule{
					{
						ID:             "LGPD-LEGAL-BASIS",
						Citation:       "LGPD Art. 7",
						Description:    "Processing requires a declared legal basis.",
						Severity:       8,
						RequiredFields: []string{"transfer.legal_basis"},
						Predicate:      `fields["transfer.legal_basis"] != ""`,
					},
					{
						ID:             "LGPD-TRANSFER",
						Citation:       "LGPD Art. 33",
						Description:    "International transfers require adequacy or specific guarantees.",
						Severity:       7,
						RequiredFields: []string{"transfer.safeguards"},
						Predicate:      `fields["transfer.safeguards"] != ""`,
					},
				},
			},
			{
				ID:            "PIPEDA",
				Name:          "Personal Information Protection and Electronic Documents Act",
				Citation:      "Canada S.C. 2000, c. 5",
				Jurisdiction:  JurisdictionCA,
				Applicability: `"CA" in touched`,
				Reasoning:     "Applies because the data traverses or is governed by Canada.",
				Rules: []Rule{
					{
						ID:             "PIPEDA-CONSENT",
						Citation:       "PIPEDA Principle 4.3",
						Description:    "Knowledge and consent of the individual are required for disclosure.",
						Severity:       8,
						RequiredFields: []string{"subject.consent"},
						Predicate:      `fields["subject.consent"] == true`,
					},
				},
			},
		},
		Taxonomy: []TaxonomyEntry{
			{Type: PHITypeSSN, Description: "US Social Security Number", Weight: 9, Citation: "45 CFR §164.514(b)(2)(i)(G)"},
			{Type: PHITypeMRN, Description: "Medical record number", Weight: 8, Citation: "45 CFR §164.514(b)(2)(i)(H)"},
			{Type: PHITypeAadhaar, Description: "India Aadhaar number", Weight: 9, Citation: "DPDP Act 2023 §2(t)"},
			{Type: PHITypePAN, Description: "India permanent account number", Weight: 7, Citation: "DPDP Act 2023 §2(t)"},
			{Type: PHITypeNHSNumber, Description: "UK NHS number", Weight: 8, Citation: "UK DPA 2018 Sch. 1"},
			{Type: PHITypeCPF, Description: "Brazil CPF number", Weight: 8, Citation: "LGPD Art. 5(I)"},
			{Type: PHITypeAddress, Description: "Street address", Weight: 5, Citation: "45 CFR §164.514(b)(2)(i)(B)"},
			{Type: PHITypeDate, Description: "Date directly related to an individual", Weight: 3, Citation: "45 CFR §164.514(b)(2)(i)(C)"},
			{Type: PHITypeDeviceID, Description: "Medical device or implant identifier", Weight: 6, Citation: "45 CFR §164.514(b)(2)(i)(M)"},
			{Type: PHITypeName, Description: "Person name", Weight: 6, Citation: "45 CFR §164.514(b)(2)(i)(A)"},
		},
	}
}
