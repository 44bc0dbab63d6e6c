package prompts

// 以下模板是系统行为的一部分：意图分类与参数抽取的准确性依赖于
// 模板的措辞，修改时需要同步回归 dispatcher 的相关测试。

const semanticRouterTemplate = `
Classify the following user input into EXACTLY ONE category. Analyze carefully and choose the most specific matching category.

Categories (in order of precedence):
1. CONNECT_WALLET
   - Keywords: connect wallet, link wallet, use wallet, wallet extension
   - Must express intent to connect/link an existing wallet or use a wallet extension
   - Ignore if just asking about wallets in general

2. SEND_TOKEN
   - Keywords: send, transfer, pay, give tokens
   - Must include intent to transfer tokens to another address
   - Should involve one-way token movement

3. SWAP_TOKEN
   - Keywords: swap, exchange, trade, convert tokens
   - Must involve exchanging one token type for another
   - Should mention both source and target tokens

4. REQUEST_ATTESTATION
   - Keywords: attestation, verify, prove, check enclave
   - Must specifically request verification or attestation
   - Related to security or trust verification

5. CONVERSATIONAL (default)
   - Use when input doesn't clearly match above categories
   - General questions, greetings, or unclear requests
   - Any ambiguous or multi-category inputs

Input: {{.user_input}}

Instructions:
- Choose ONE category only
- Select most specific matching category
- Default to CONVERSATIONAL if unclear
- Ignore politeness phrases or extra context
- Focus on core intent of request
`

const connectWalletTemplate = `
Extract a wallet address from the user input if present. If no wallet address is found, respond with an empty wallet_address.

User Input: {{.user_input}}

Instructions:
- Look for an Ethereum-style wallet address (0x followed by 40 hexadecimal characters)
- Return the wallet address if found
- Return an empty string if no valid wallet address is found
- Format the response as a JSON object with a single key "wallet_address"

Example Response:
{"wallet_address": "0x1234567890abcdef1234567890abcdef12345678"}
or
{"wallet_address": ""}
`

const walletConnectedTemplate = `
Generate a friendly response confirming that the wallet has been connected successfully.

Connected Wallet Address: {{.address}}

Instructions:
- Confirm the wallet has been connected successfully
- Include the wallet address in the response
- Mention that the user can now send and swap tokens
- Keep the response concise and friendly
`

const walletConnectionInstructionsTemplate = `
Generate instructions for connecting a wallet to the DeFi application.

Instructions:
- Explain that the user needs to connect a wallet to use the DeFi features
- Mention common wallet extensions like MetaMask, Trust Wallet, or Coinbase Wallet
- Provide step-by-step instructions for connecting a wallet
- Explain that the user should share their wallet address once connected
- Keep the instructions clear and concise
`

const walletRequiredTemplate = `
Generate a friendly message explaining that a wallet connection is required before performing token operations.

Instructions:
- Explain that a wallet connection is required to send or swap tokens
- Provide brief instructions on how to connect a wallet
- Keep the message friendly and helpful
- Suggest using the phrase "connect wallet" to initiate the connection process
`

const generateAccountTemplate = `
Generate a welcoming message that includes ALL of these elements in order:

1. Welcome message that conveys enthusiasm for the user joining
2. Security explanation:
   - Account is secured in a Trusted Execution Environment (TEE)
   - Private keys never leave the secure enclave
   - Hardware-level protection against tampering
3. Account address display:
   - EXACTLY as provided, make no changes: {{.address}}
   - Format with clear visual separation
4. Funding account instructions:
   - Tell the user to fund the new account: [Add funds to account](https://faucet.flare.network/coston2)

Important rules:
- DO NOT modify the address in any way
- Explain that addresses are public information
- Use markdown for formatting
- Keep the message concise (max 4 sentences)
- Avoid technical jargon unless explaining TEE
`

const tokenSendTemplate = `
Extract EXACTLY two pieces of information from the input text for a token send operation:

1. DESTINATION ADDRESS
   Required format:
   - Must start with "0x"
   - Exactly 42 characters long
   - Hexadecimal characters only (0-9, a-f, A-F)
   - Extract COMPLETE address only
   - DO NOT modify or truncate
   - FAIL if no valid address found

2. TOKEN AMOUNT
   Number extraction rules:
   - Convert written numbers to digits (e.g., "five" -> 5)
   - Handle decimals and integers
   - Convert ALL integers to float (e.g., 100 -> 100.0)
   - Recognize common amount formats:
     - Decimal: "1.5", "0.5"
     - Integer: "1", "100"
     - With words: "5 tokens", "10 FLR"
   - Extract first valid number only
   - FAIL if no valid amount found

Input: {{.user_input}}

Rules:
- Both fields MUST be present
- Amount MUST be positive
- Amount MUST be float type
- DO NOT infer missing values
- DO NOT modify the address
- FAIL if either value is missing or invalid
`

const tokenSwapTemplate = `
Extract EXACTLY three pieces of information from the input for a token swap operation:

1. SOURCE TOKEN (from_token)
   Valid formats:
   - Native token: "FLR" or "flr"
   - Listed pairs only: "USDC", "WFLR", "USDT", "sFLR", "WETH"
   - Case-insensitive match
   - Strip spaces and normalize to uppercase
   - FAIL if token not recognized

2. DESTINATION TOKEN (to_token)
   Valid formats:
   - Same rules as source token
   - Must be different from source token
   - FAIL if same as source token
   - FAIL if token not recognized

3. SWAP AMOUNT
   Number extraction rules:
   - Convert written numbers to digits (e.g., "five" -> 5.0)
   - Handle decimal and integer inputs
   - Convert ALL integers to float (e.g., 100 -> 100.0)
   - Extract first valid number only
   - Amount MUST be positive
   - FAIL if no valid amount found

Input: {{.user_input}}

Response format:
{
  "from_token": "<UPPERCASE_TOKEN_SYMBOL>",
  "to_token": "<UPPERCASE_TOKEN_SYMBOL>",
  "amount": <float_value>
}

Processing rules:
- All three fields MUST be present
- DO NOT infer missing values
- DO NOT allow same token pairs
- Normalize token symbols to uppercase
- Amount MUST be float type
- Amount MUST be positive
- FAIL if any value missing or invalid
`

const conversationalTemplate = `
I am Artemis, an AI assistant representing Flare, the blockchain network specialized in cross-chain data oracle services.

Key aspects I embody:
- Deep knowledge of Flare's technical capabilities in providing decentralized data to smart contracts
- Understanding of Flare's enshrined data protocols like Flare Time Series Oracle (FTSO) and Flare Data Connector (FDC)
- Friendly and engaging personality while maintaining technical accuracy
- Creative yet precise responses grounded in Flare's actual capabilities

When responding to queries, I will:
1. Address the specific question or topic raised
2. Provide technically accurate information about Flare when relevant
3. Maintain conversational engagement while ensuring factual correctness
4. Acknowledge any limitations in my knowledge when appropriate
`

const remoteAttestationTemplate = `
A user wants to perform a remote attestation with the TEE, make the following process clear to the user:

1. Requirements for the users attestation request:
   - The user must provide a single random message
   - Message length must be between 10-74 characters
   - Message can include letters and numbers
   - No additional text or instructions should be included

2. Format requirements:
   - The user must send ONLY the random message in their next response

3. Verification process:
   - After receiving the attestation response, the user should visit https://jwt.io
   - They should paste the complete attestation response into the JWT decoder
   - They should verify that the decoded payload contains your exact random message
   - They should confirm the TEE signature is valid
   - They should check that all claims in the attestation response are present and valid
`

const txConfirmationTemplate = `
Generate a friendly response confirming a transaction has been processed.

Transaction Information: {{.tx_hash}}
Block Explorer URL: {{.block_explorer}}

Instructions:
- If the transaction information starts with "tx_data:", explain that the transaction data has been prepared and will be sent to the wallet extension for signing
- If the transaction information starts with "0x", confirm the transaction has been sent successfully and include the transaction hash
- Provide a link to view the transaction on the block explorer if a transaction hash is available
- Keep the response concise and friendly
`

const followUpTokenSendTemplate = `I need more information to process your token transfer. Please specify the recipient address and the amount you want to send.`
